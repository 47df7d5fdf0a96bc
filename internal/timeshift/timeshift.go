// Package timeshift serves Xtream Codes catch-up URLs
// (/timeshift/{user}/{pass}/{epg}/{start}/{provider_stream_id}.ts) by
// rewriting them into the provider's catch-up URL and relaying the result.
//
// XC clients put the EPG channel token in the third segment and the
// provider's stream id in the fifth. Only the fifth is used for lookup; the
// third is logged for diagnostics.
package timeshift

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/grafana/regexp"

	"github.com/snapetech/xc-timeshift/internal/capability"
	"github.com/snapetech/xc-timeshift/internal/catalog"
	"github.com/snapetech/xc-timeshift/internal/config"
	"github.com/snapetech/xc-timeshift/internal/gateway"
	"github.com/snapetech/xc-timeshift/internal/metrics"
	"github.com/snapetech/xc-timeshift/internal/resolver"
	"github.com/snapetech/xc-timeshift/internal/safeurl"
	"github.com/snapetech/xc-timeshift/internal/tzconv"
	"github.com/snapetech/xc-timeshift/internal/urltemplate"
)

// ProgramDuration is the catch-up window requested from the provider, in minutes.
const ProgramDuration = 120

var pathRe = regexp.MustCompile(`^/timeshift/([^/]+)/([^/]+)/([^/]+)/([^/]+)/([^/]+?)(?:\.ts)?$`)

// Playback is one parsed catch-up request.
type Playback struct {
	Username         string
	Password         string
	EPGToken         string // third path segment; not used for lookup
	Start            string // UTC, epoch seconds or YYYY-MM-DD:HH-MM
	ProviderStreamID string
}

// ParsePath extracts a Playback from an escaped request path.
func ParsePath(escapedPath string) (Playback, bool) {
	m := pathRe.FindStringSubmatch(escapedPath)
	if m == nil {
		return Playback{}, false
	}
	seg := make([]string, 5)
	for i := range seg {
		s, err := url.PathUnescape(m[i+1])
		if err != nil {
			return Playback{}, false
		}
		seg[i] = s
	}
	p := Playback{Username: seg[0], Password: seg[1], EPGToken: seg[2], Start: seg[3], ProviderStreamID: seg[4]}
	if p.ProviderStreamID == "" {
		return Playback{}, false
	}
	return p, true
}

// Plan is a validated request ready to be sent upstream.
type Plan struct {
	User      catalog.User
	Channel   catalog.Channel
	Stream    catalog.Stream
	Account   catalog.Account
	URL       string
	UserAgent string
	Start     time.Time
	LocalTime string
	Zone      string
}

// Handler claims /timeshift/ paths on the XC host.
type Handler struct {
	Store    catalog.Store
	Resolver *resolver.Resolver
	Settings config.SettingsSource
	Upstream *gateway.Upstream

	reqSeq uint64
}

// New returns a Handler. A nil settings source means defaults.
func New(store catalog.Store, settings config.SettingsSource, upstream *gateway.Upstream) *Handler {
	if settings == nil {
		settings = config.StaticSettings(config.DefaultSettings())
	}
	if upstream == nil {
		upstream = &gateway.Upstream{}
	}
	return &Handler{
		Store:    store,
		Resolver: resolver.New(store),
		Settings: settings,
		Upstream: upstream,
	}
}

// Intercept claims GET requests on catch-up paths while the feature is
// enabled. When disabled the request falls through to the host.
func (h *Handler) Intercept(r *http.Request) (http.Handler, bool) {
	if r.Method != http.MethodGet || !strings.HasPrefix(r.URL.Path, "/timeshift/") {
		return nil, false
	}
	settings := h.Settings.Settings()
	if !settings.Enabled {
		return nil, false
	}
	p, ok := ParsePath(r.URL.EscapedPath())
	if !ok {
		return nil, false
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, p, settings)
	}), true
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, p Playback, settings config.Settings) {
	reqID := fmt.Sprintf("r%06d", atomic.AddUint64(&h.reqSeq, 1))
	start := time.Now()
	log.Printf("timeshift: req=%s recv user=%q provider_stream_id=%s epg=%q start=%q remote=%q",
		reqID, p.Username, p.ProviderStreamID, p.EPGToken, p.Start, r.RemoteAddr)

	plan, err := h.Prepare(p, settings)
	if err != nil {
		h.fail(w, reqID, err)
		return
	}
	log.Printf("timeshift: req=%s resolved channel=%q id=%d stream=%d start=%s local=%s zone=%s",
		reqID, plan.Channel.Name, plan.Channel.ID, plan.Stream.ID, plan.Start.Format(tzconv.Layout), plan.LocalTime, plan.Zone)

	rangeHdr := r.Header.Get("Range")
	log.Printf("timeshift: req=%s upstream url=%s range=%q", reqID, safeurl.RedactURL(plan.URL), rangeHdr)
	resp, err := h.Upstream.Open(r.Context(), gateway.Request{URL: plan.URL, UserAgent: plan.UserAgent, Range: rangeHdr})
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			metrics.TimeshiftRequests.WithLabelValues("client_gone").Inc()
			log.Printf("timeshift: req=%s client gone before upstream answered", reqID)
			return
		}
		h.fail(w, reqID, upstreamError(err))
		return
	}
	defer resp.Close()

	active := metrics.ActiveStreams.WithLabelValues(metrics.KindTimeshift)
	active.Inc()
	defer active.Dec()
	metrics.TimeshiftRequests.WithLabelValues("streamed").Inc()
	log.Printf("timeshift: req=%s streaming status=%d ct=%q cl=%q", reqID, resp.Status, resp.ContentType, resp.Header.Get("Content-Length"))

	n, err := gateway.Relay(w, resp)
	metrics.UpstreamBytes.WithLabelValues(metrics.KindTimeshift).Add(float64(n))
	if err != nil {
		log.Printf("timeshift: req=%s relay ended bytes=%d dur=%s err=%v", reqID, n, time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("timeshift: req=%s done bytes=%d dur=%s", reqID, n, time.Since(start).Round(time.Millisecond))
}

// Prepare runs every check that happens before the provider is contacted:
// authentication, channel resolution, access level, catch-up capability,
// account type and timestamp conversion. It returns *Error on refusal.
func (h *Handler) Prepare(p Playback, settings config.Settings) (*Plan, error) {
	user, err := h.Store.User(p.Username)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			log.Printf("timeshift: user lookup failed user=%q err=%v", p.Username, err)
		}
		return nil, newError(KindNotFound, "user not found")
	}
	if user.XCPassword == "" || subtle.ConstantTimeCompare([]byte(user.XCPassword), []byte(p.Password)) != 1 {
		return nil, newError(KindUnauthorized, "invalid credentials")
	}

	m, ok := h.Resolver.StreamForProvider(p.ProviderStreamID, resolver.ScopeLive)
	if !ok {
		return nil, newError(KindNotFound, "channel not found")
	}
	if !user.CanSee(m.Channel) {
		return nil, newError(KindUnauthorized, "access denied")
	}
	if has, _ := capability.Detect(m.Stream.Properties); !has {
		return nil, newError(KindUnsupported, "catch-up not supported for this channel")
	}
	acct, err := h.Store.Account(m.Stream.AccountID)
	if err != nil || acct.Type != catalog.AccountXC {
		return nil, newError(KindUnsupported, "channel not from an Xtream Codes provider")
	}

	startAt, err := tzconv.ParseStart(p.Start)
	if err != nil {
		return nil, &Error{Kind: KindBadRequest, Msg: "invalid start time", Err: err}
	}
	local, zone := tzconv.ToLocalOrDefault(startAt, settings.Timezone)
	if zone != settings.Timezone {
		log.Printf("timeshift: timezone %q unusable, using %s", settings.Timezone, zone)
	}

	providerID, _ := m.Stream.ProviderStreamID()
	ctx := urltemplate.Context{
		urltemplate.ServerURL:     strings.TrimRight(acct.ServerURL, "/"),
		urltemplate.Username:      acct.Username,
		urltemplate.Password:      acct.Password,
		urltemplate.StreamID:      providerID,
		urltemplate.ProgramStart:  local,
		urltemplate.ProgramLength: fmt.Sprint(ProgramDuration),
	}
	tmpl := settings.CatchupURLTemplate
	if strings.TrimSpace(tmpl) == "" {
		tmpl = urltemplate.DefaultCatchup
	}
	if left := urltemplate.Unresolved(tmpl, ctx); len(left) > 0 {
		log.Printf("timeshift: catch-up template has unknown placeholders %v (left as-is)", left)
	}

	return &Plan{
		User:      user,
		Channel:   m.Channel,
		Stream:    m.Stream,
		Account:   acct,
		URL:       urltemplate.Render(tmpl, ctx),
		UserAgent: acct.UA(),
		Start:     startAt,
		LocalTime: local,
		Zone:      zone,
	}, nil
}

func upstreamError(err error) *Error {
	var ue *gateway.UpstreamError
	if errors.As(err, &ue) {
		if ue.Timeout {
			return &Error{Kind: KindUpstreamTimeout, Msg: "provider timeout", Err: err}
		}
		if ue.Status != 0 {
			return &Error{Kind: KindUpstream, Msg: fmt.Sprintf("provider error: %d", ue.Status), Err: err}
		}
		return &Error{Kind: KindUpstream, Msg: "provider connection error", Err: err}
	}
	return &Error{Kind: KindUpstream, Msg: "provider connection error", Err: err}
}

func (h *Handler) fail(w http.ResponseWriter, reqID string, err error) {
	var te *Error
	if !errors.As(err, &te) {
		te = &Error{Kind: KindUpstream, Msg: "internal error", Err: err}
	}
	metrics.TimeshiftRequests.WithLabelValues(te.Kind.String()).Inc()
	var ue *gateway.UpstreamError
	if errors.As(te, &ue) && ue.Status != 0 {
		log.Printf("timeshift: req=%s failed kind=%s status=%d content-type=%q body=%q url=%s",
			reqID, te.Kind, ue.Status, ue.ContentType, ue.Preview, ue.URL)
	} else {
		log.Printf("timeshift: req=%s failed kind=%s err=%v", reqID, te.Kind, te)
	}
	http.Error(w, te.Msg, te.Status())
}
