package xtream

import (
	"encoding/base64"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/snapetech/xc-timeshift/internal/catalog"
	"github.com/snapetech/xc-timeshift/internal/metrics"
	"github.com/snapetech/xc-timeshift/internal/resolver"
)

const (
	// DefaultShortEPGLimit is used when get_short_epg has no usable limit.
	DefaultShortEPGLimit = 4

	epgTimeLayout = "2006-01-02 15:04:05"
	epgLookBehind = 30 * 24 * time.Hour
	epgLookAhead  = 14 * 24 * time.Hour
)

var knownActions = map[string]bool{
	"":                      true,
	"get_live_categories":   true,
	"get_live_streams":      true,
	"get_short_epg":         true,
	"get_simple_data_table": true,
}

func (h *Host) servePlayerAPI(w http.ResponseWriter, r *http.Request) {
	action := r.FormValue("action")
	label := action
	switch {
	case label == "":
		label = "account_info"
	case !knownActions[label]:
		label = "other"
	}
	metrics.ListingRequests.WithLabelValues(label).Inc()

	user, err := h.authenticate(r.FormValue("username"), r.FormValue("password"))
	if err != nil {
		log.Printf("xtream: player_api auth failed user=%q action=%q err=%v", r.FormValue("username"), action, err)
		writeJSON(w, r, http.StatusUnauthorized, map[string]any{"user_info": map[string]any{"auth": 0}})
		return
	}

	switch action {
	case "":
		h.writeAccountInfo(w, r, user)
	case "get_live_categories":
		writeJSON(w, r, http.StatusOK, h.liveCategories(user))
	case "get_live_streams":
		writeJSON(w, r, http.StatusOK, h.LiveStreams(user, r.FormValue("category_id")))
	case "get_short_epg":
		limit, err := strconv.Atoi(r.FormValue("limit"))
		if err != nil || limit <= 0 {
			limit = DefaultShortEPGLimit
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"epg_listings": h.EPG(user, r.FormValue("stream_id"), limit)})
	case "get_simple_data_table":
		writeJSON(w, r, http.StatusOK, map[string]any{"epg_listings": h.EPG(user, r.FormValue("stream_id"), 0)})
	default:
		// VOD and series actions: this host only carries live channels.
		writeJSON(w, r, http.StatusOK, []any{})
	}
}

type userInfo struct {
	Username             string   `json:"username"`
	Password             string   `json:"password"`
	Message              string   `json:"message"`
	Auth                 int      `json:"auth"`
	Status               string   `json:"status"`
	ExpDate              *string  `json:"exp_date"`
	IsTrial              string   `json:"is_trial"`
	ActiveCons           string   `json:"active_cons"`
	CreatedAt            string   `json:"created_at"`
	MaxConnections       string   `json:"max_connections"`
	AllowedOutputFormats []string `json:"allowed_output_formats"`
}

type serverInfo struct {
	URL            string `json:"url"`
	Port           string `json:"port"`
	HTTPSPort      string `json:"https_port"`
	ServerProtocol string `json:"server_protocol"`
	RTMPPort       string `json:"rtmp_port"`
	Timezone       string `json:"timezone"`
	TimestampNow   int64  `json:"timestamp_now"`
	TimeNow        string `json:"time_now"`
}

func (h *Host) writeAccountInfo(w http.ResponseWriter, r *http.Request, user catalog.User) {
	now := h.now().UTC()
	si := serverInfo{
		ServerProtocol: "http",
		Port:           "80",
		HTTPSPort:      "443",
		RTMPPort:       "0",
		Timezone:       h.Settings.Settings().Timezone,
		TimestampNow:   now.Unix(),
		TimeNow:        now.Format(epgTimeLayout),
	}
	if u, err := url.Parse(h.baseURL(r)); err == nil {
		si.URL = u.Hostname()
		si.ServerProtocol = u.Scheme
		if p := u.Port(); p != "" {
			if u.Scheme == "https" {
				si.HTTPSPort = p
			} else {
				si.Port = p
			}
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"user_info": userInfo{
			Username:             user.Username,
			Password:             user.XCPassword,
			Auth:                 1,
			Status:               "Active",
			IsTrial:              "0",
			ActiveCons:           "0",
			CreatedAt:            "0",
			MaxConnections:       "1",
			AllowedOutputFormats: []string{"ts"},
		},
		"server_info": si,
	})
}

// visibleChannels returns the channels user may see, in guide order.
func (h *Host) visibleChannels(user catalog.User) []catalog.Channel {
	chs, err := h.Store.Channels()
	if err != nil {
		log.Printf("xtream: list channels err=%v", err)
		return nil
	}
	out := chs[:0]
	for _, ch := range chs {
		if user.CanSee(ch) {
			out = append(out, ch)
		}
	}
	return out
}

func (h *Host) liveCategories(user catalog.User) []Category {
	out := []Category{}
	seen := map[string]bool{}
	for _, ch := range h.visibleChannels(user) {
		if ch.CategoryID == "" || seen[ch.CategoryID] {
			continue
		}
		seen[ch.CategoryID] = true
		name := ch.CategoryID
		if streams, err := h.Store.ChannelStreams(ch.ID); err == nil && len(streams) > 0 && streams[0].Group != "" {
			name = streams[0].Group
		}
		out = append(out, Category{CategoryID: ch.CategoryID, CategoryName: name})
	}
	return out
}

// LiveStreams builds the get_live_streams listing for user and runs it
// through every listing hook.
func (h *Host) LiveStreams(user catalog.User, categoryID string) []LiveStream {
	out := []LiveStream{}
	for _, ch := range h.visibleChannels(user) {
		if categoryID != "" && ch.CategoryID != categoryID {
			continue
		}
		out = append(out, LiveStream{
			Num:          len(out) + 1,
			Name:         ch.Name,
			StreamType:   "live",
			StreamID:     ch.ID,
			StreamIcon:   ch.Logo,
			EPGChannelID: ch.EPGChannelID,
			Added:        "0",
			CategoryID:   ch.CategoryID,
			ChannelID:    ch.ID,
		})
	}
	for _, hook := range h.Hooks {
		out = hook.AugmentLiveStreams(out)
	}
	return out
}

// EPG builds an EPG listing for the channel behind streamID. limit > 0 gives
// the short form (current and upcoming programmes); 0 gives the full table.
func (h *Host) EPG(user catalog.User, streamID string, limit int) []EPGListing {
	ch, ok := h.channelFor(user, streamID, resolver.ScopeEPG)
	if !ok || ch.EPGChannelID == "" {
		return []EPGListing{}
	}
	now := h.now()
	from, to := now.Add(-epgLookBehind), now.Add(epgLookAhead)
	if limit > 0 {
		from = now
	}
	progs, err := h.Store.Programmes(ch.EPGChannelID, from, to)
	if err != nil {
		log.Printf("xtream: programmes epg=%q err=%v", ch.EPGChannelID, err)
		return []EPGListing{}
	}
	if limit > 0 && len(progs) > limit {
		progs = progs[:limit]
	}
	lang := h.Settings.Settings().Language
	out := make([]EPGListing, 0, len(progs))
	for i, p := range progs {
		nowPlaying := 0
		if !now.Before(p.Start) && now.Before(p.Stop) {
			nowPlaying = 1
		}
		out = append(out, EPGListing{
			ID:             strconv.Itoa(i + 1),
			EPGID:          strconv.FormatInt(ch.ID, 10),
			Title:          base64.StdEncoding.EncodeToString([]byte(p.Title)),
			Lang:           lang,
			Start:          p.Start.UTC().Format(epgTimeLayout),
			End:            p.Stop.UTC().Format(epgTimeLayout),
			Description:    base64.StdEncoding.EncodeToString([]byte(p.Description)),
			ChannelID:      ch.EPGChannelID,
			StartTimestamp: strconv.FormatInt(p.Start.Unix(), 10),
			StopTimestamp:  strconv.FormatInt(p.Stop.Unix(), 10),
			NowPlaying:     nowPlaying,
			StartTime:      p.Start,
			StopTime:       p.Stop,
		})
	}
	for _, hook := range h.Hooks {
		out = hook.AugmentEPG(ch, out)
	}
	return out
}
