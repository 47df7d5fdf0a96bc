package xtream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/snapetech/xc-timeshift/internal/gateway"
	"github.com/snapetech/xc-timeshift/internal/metrics"
	"github.com/snapetech/xc-timeshift/internal/resolver"
	"github.com/snapetech/xc-timeshift/internal/safeurl"
)

var liveReqSeq uint64

// serveLive relays /live/{user}/{pass}/{id}.ts. The channel's streams are
// tried in order until one answers with media.
func (h *Host) serveLive(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	user, err := h.authenticate(vars["username"], vars["password"])
	switch {
	case errors.Is(err, errUnknownUser):
		http.NotFound(w, r)
		return
	case err != nil:
		writeJSON(w, r, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		return
	}

	id := vars["stream"]
	id = strings.TrimSuffix(id, path.Ext(id))
	ch, ok := h.channelFor(user, id, resolver.ScopeLive)
	if !ok {
		log.Printf("xtream: live channel not found id=%q user=%q", id, user.Username)
		http.NotFound(w, r)
		return
	}
	streams, err := h.Store.ChannelStreams(ch.ID)
	if err != nil || len(streams) == 0 {
		log.Printf("xtream: live channel=%q id=%d no streams err=%v", ch.Name, ch.ID, err)
		http.NotFound(w, r)
		return
	}

	reqID := fmt.Sprintf("l%06d", atomic.AddUint64(&liveReqSeq, 1))
	start := time.Now()
	log.Printf("xtream: req=%s live channel=%q id=%d requested=%q remote=%q", reqID, ch.Name, ch.ID, id, r.RemoteAddr)
	for i, s := range streams {
		acct, _ := h.Store.Account(s.AccountID)
		resp, err := h.Upstream.Open(r.Context(), gateway.Request{URL: s.URL, UserAgent: acct.UA(), Range: r.Header.Get("Range")})
		if err != nil {
			if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
				log.Printf("xtream: req=%s client gone", reqID)
				return
			}
			log.Printf("xtream: req=%s channel=%q upstream[%d/%d] err=%v", reqID, ch.Name, i+1, len(streams), err)
			continue
		}
		log.Printf("xtream: req=%s channel=%q start upstream[%d/%d] url=%s ct=%q", reqID, ch.Name, i+1, len(streams), safeurl.RedactURL(s.URL), resp.ContentType)
		active := metrics.ActiveStreams.WithLabelValues(metrics.KindLive)
		active.Inc()
		n, err := gateway.Relay(w, resp)
		active.Dec()
		resp.Close()
		metrics.UpstreamBytes.WithLabelValues(metrics.KindLive).Add(float64(n))
		log.Printf("xtream: req=%s channel=%q proxied bytes=%d dur=%s err=%v", reqID, ch.Name, n, time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("xtream: req=%s channel=%q all %d upstream(s) failed dur=%s", reqID, ch.Name, len(streams), time.Since(start).Round(time.Millisecond))
	http.Error(w, "All upstreams failed", http.StatusBadGateway)
}
