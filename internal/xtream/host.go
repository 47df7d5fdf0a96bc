// Package xtream is a minimal Xtream Codes host: player_api.php listings and
// /live relays over the catalog, with extension points for listing hooks,
// request interceptors and channel lookup substitution.
package xtream

import (
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/snapetech/xc-timeshift/internal/catalog"
	"github.com/snapetech/xc-timeshift/internal/config"
	"github.com/snapetech/xc-timeshift/internal/gateway"
	"github.com/snapetech/xc-timeshift/internal/resolver"
)

// Host serves the XC client surface.
type Host struct {
	Store    catalog.Store
	Settings config.SettingsSource
	Upstream *gateway.Upstream
	// BaseURL is advertised in server_info (scheme://host:port); derived from
	// the request when empty.
	BaseURL string

	Hooks        []ListingHook
	Interceptors []Interceptor
	Lookup       ChannelLookup

	Now func() time.Time

	router *mux.Router
}

// New builds a Host with its routes registered.
func New(store catalog.Store, settings config.SettingsSource, upstream *gateway.Upstream) *Host {
	if settings == nil {
		settings = config.StaticSettings(config.DefaultSettings())
	}
	if upstream == nil {
		upstream = &gateway.Upstream{}
	}
	h := &Host{Store: store, Settings: settings, Upstream: upstream, Now: time.Now}
	r := mux.NewRouter()
	r.HandleFunc("/player_api.php", h.servePlayerAPI).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/live/{username}/{password}/{stream}", h.serveLive).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(h.notFound)
	h.router = r
	return h
}

// Router exposes the route table so the server can mount extra endpoints.
func (h *Host) Router() *mux.Router { return h.router }

// AddHook appends a listing hook.
func (h *Host) AddHook(hook ListingHook) { h.Hooks = append(h.Hooks, hook) }

// AddInterceptor appends a request interceptor.
func (h *Host) AddInterceptor(i Interceptor) { h.Interceptors = append(h.Interceptors, i) }

// ServeHTTP gives interceptors the first look, then routes.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for _, i := range h.Interceptors {
		if handler, ok := i.Intercept(r); ok {
			handler.ServeHTTP(w, r)
			return
		}
	}
	h.router.ServeHTTP(w, r)
}

func (h *Host) notFound(w http.ResponseWriter, r *http.Request) {
	http.NotFound(w, r)
}

func (h *Host) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

var (
	errUnknownUser = errors.New("unknown user")
	errBadPassword = errors.New("invalid credentials")
)

// authenticate checks the XC password, which is separate from any web login.
func (h *Host) authenticate(username, password string) (catalog.User, error) {
	u, err := h.Store.User(username)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			log.Printf("xtream: user lookup failed user=%q err=%v", username, err)
		}
		return catalog.User{}, errUnknownUser
	}
	if u.XCPassword == "" || subtle.ConstantTimeCompare([]byte(u.XCPassword), []byte(password)) != 1 {
		return catalog.User{}, errBadPassword
	}
	return u, nil
}

// channelFor resolves a client-supplied id: the lookup substitution first,
// then the internal channel id. Channels the user may not see are a miss.
func (h *Host) channelFor(user catalog.User, id string, scope resolver.Scope) (catalog.Channel, bool) {
	id = strings.TrimSpace(id)
	if h.Lookup != nil {
		if ch, ok := h.Lookup.LookupChannel(id, scope); ok {
			return ch, user.CanSee(ch)
		}
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return catalog.Channel{}, false
	}
	ch, err := h.Store.Channel(n)
	if err != nil {
		return catalog.Channel{}, false
	}
	return ch, user.CanSee(ch)
}

func (h *Host) baseURL(r *http.Request) string {
	if h.BaseURL != "" {
		return strings.TrimRight(h.BaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + r.Host
}
