// Package server wires the XC host, the timeshift interceptor and the
// listing augmenter onto one HTTP listener.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"github.com/snapetech/xc-timeshift/internal/augment"
	"github.com/snapetech/xc-timeshift/internal/catalog"
	"github.com/snapetech/xc-timeshift/internal/config"
	"github.com/snapetech/xc-timeshift/internal/gateway"
	"github.com/snapetech/xc-timeshift/internal/httpclient"
	"github.com/snapetech/xc-timeshift/internal/indexer"
	"github.com/snapetech/xc-timeshift/internal/safeurl"
	"github.com/snapetech/xc-timeshift/internal/timeshift"
	"github.com/snapetech/xc-timeshift/internal/xtream"
)

// Server runs the gateway. Indexer, when set together with
// Config.RefreshInterval, re-indexes the catalog in the background.
type Server struct {
	Config   *config.Config
	Catalog  *catalog.Backend
	Settings config.SettingsSource
	Indexer  *indexer.Indexer

	once    sync.Once
	handler http.Handler

	healthMu    sync.RWMutex
	lastRefresh time.Time
	refreshErr  string
}

// New returns a Server over an opened catalog.
func New(cfg *config.Config, backend *catalog.Backend, settings config.SettingsSource) *Server {
	return &Server{Config: cfg, Catalog: backend, Settings: settings}
}

// Handler builds the request pipeline once: request logging, then timeshift
// interception, then the XC router with /healthz and /metrics mounted.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() {
		cfg := s.Config
		store := s.Catalog.Store()
		upstream := &gateway.Upstream{
			Client:      httpclient.ForStreaming(cfg.UpstreamTimeout),
			Limiter:     httpclient.NewHostLimiter(cfg.UpstreamRatePerHost, cfg.UpstreamBurst),
			IdleTimeout: cfg.UpstreamIdleTimeout,
		}

		host := xtream.New(store, s.Settings, upstream)
		host.BaseURL = cfg.BaseURL
		aug := augment.New(store, s.Settings)
		host.AddHook(aug)
		host.Lookup = aug
		host.AddInterceptor(timeshift.New(store, s.Settings, upstream))

		r := host.Router()
		r.Handle("/healthz", s.serveHealth()).Methods(http.MethodGet)
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
		s.handler = logRequests(host)
	})
	return s.handler
}

// Run listens on Config.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.Config.Addr
	if addr == "" {
		addr = ":9191"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if n := s.Config.MaxConnections; n > 0 {
		ln = netutil.LimitListener(ln, n)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	if s.Indexer != nil && s.Config.RefreshInterval > 0 {
		go s.refreshLoop(ctx, s.Config.RefreshInterval)
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("server: listening on %s (base url %q, max connections %d)", ln.Addr(), s.Config.BaseURL, s.Config.MaxConnections)
		serverErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Print("server: shutting down ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown: %v", err)
		}
		<-serverErr
		return nil
	}
}

func (s *Server) refreshLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.Refresh(ctx); err != nil {
				log.Printf("server: refresh: %v", err)
			}
		}
	}
}

// Refresh runs the indexer over the catalog and persists the result. Partial
// failures are logged; the accounts that did index are still saved.
func (s *Server) Refresh(ctx context.Context) error {
	work, err := s.Catalog.Working()
	if err != nil {
		s.noteRefresh(err)
		return err
	}
	_, runErr := s.Indexer.Run(ctx, work)
	if runErr != nil {
		log.Printf("server: refresh partial: %v", runErr)
	}
	err = s.Catalog.Commit(work)
	s.noteRefresh(err)
	return err
}

func (s *Server) noteRefresh(err error) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.lastRefresh = time.Now()
	s.refreshErr = ""
	if err != nil {
		s.refreshErr = err.Error()
	}
}

// serveHealth returns 200 {"status":"ok",...} once the catalog has channels,
// 503 {"status":"empty"} before.
func (s *Server) serveHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chs, err := s.Catalog.Store().Channels()
		s.healthMu.RLock()
		last, refreshErr := s.lastRefresh, s.refreshErr
		s.healthMu.RUnlock()

		body := map[string]any{
			"status":            "ok",
			"channels":          len(chs),
			"timeshift_enabled": s.Settings.Settings().Enabled,
		}
		if !last.IsZero() {
			body["last_refresh"] = last.UTC().Format(time.RFC3339)
		}
		if refreshErr != "" {
			body["refresh_error"] = refreshErr
		}
		status := http.StatusOK
		if err != nil || len(chs) == 0 {
			status = http.StatusServiceUnavailable
			body["status"] = "empty"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *loggingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *loggingResponseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// logRequests logs one line per request. Paths and queries carry client
// passwords, so the URL is redacted first.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)
		status := lw.status
		if status == 0 {
			status = http.StatusOK
		}
		log.Printf(
			"http: %s %s status=%d bytes=%d dur=%s ua=%q remote=%s",
			r.Method, safeurl.RedactURL(r.URL.RequestURI()), status, lw.bytes, time.Since(start).Round(time.Millisecond), r.UserAgent(), r.RemoteAddr,
		)
	})
}
