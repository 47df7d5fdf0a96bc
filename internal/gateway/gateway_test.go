package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestOpen_relaysMedia(t *testing.T) {
	var gotUA, gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotRange = r.Header.Get("Range")
		w.Header().Set("Content-Type", "video/mp2t")
		w.Header().Set("Content-Range", "bytes 100-199/1000")
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("X-Provider-Secret", "no")
		w.WriteHeader(http.StatusPartialContent)
		io.WriteString(w, strings.Repeat("x", 100))
	}))
	defer srv.Close()

	u := &Upstream{Client: srv.Client()}
	resp, err := u.Open(context.Background(), Request{URL: srv.URL + "/x.ts", UserAgent: "VLC/3.0.18", Range: "bytes=100-199"})
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Close()
	if gotUA != "VLC/3.0.18" || gotRange != "bytes=100-199" {
		t.Errorf("forwarded ua=%q range=%q", gotUA, gotRange)
	}

	rec := httptest.NewRecorder()
	n, err := Relay(rec, resp)
	if err != nil {
		t.Fatal(err)
	}
	if n != 100 || rec.Body.Len() != 100 {
		t.Errorf("relayed %d bytes, body %d", n, rec.Body.Len())
	}
	if rec.Code != http.StatusPartialContent {
		t.Errorf("status = %d, want 206", rec.Code)
	}
	if rec.Header().Get("Content-Range") != "bytes 100-199/1000" || rec.Header().Get("Accept-Ranges") != "bytes" {
		t.Errorf("seek headers not copied: %v", rec.Header())
	}
	if rec.Header().Get("X-Provider-Secret") != "" {
		t.Error("unexpected header copied")
	}
	if !rec.Flushed {
		t.Error("expected flushes while relaying")
	}
}

func TestRelay_defaultContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		w.Write([]byte{0x47, 0x40, 0x00})
	}))
	defer srv.Close()

	resp, err := (&Upstream{}).Open(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Close()
	rec := httptest.NewRecorder()
	if _, err := Relay(rec, resp); err != nil {
		t.Fatal(err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != DefaultContentType {
		t.Errorf("Content-Type = %q, want %q", ct, DefaultContentType)
	}
}

func TestOpen_rejects(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
	}{
		{"server error", http.StatusInternalServerError, "video/mp2t", "boom"},
		{"not found", http.StatusNotFound, "text/plain", "nope"},
		{"html on 200", http.StatusOK, "text/html; charset=utf-8", "<html>login</html>"},
		{"json on 200", http.StatusOK, "application/json", `{"user_info":{"auth":0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := (&Upstream{}).Open(context.Background(), Request{URL: srv.URL + "/timeshift/u/p/120/x/1.ts"})
			var ue *UpstreamError
			if !errors.As(err, &ue) {
				t.Fatalf("err = %v, want *UpstreamError", err)
			}
			if ue.Status != tt.status || ue.Preview != tt.body {
				t.Errorf("status=%d preview=%q", ue.Status, ue.Preview)
			}
			if strings.Contains(ue.Error(), "/u/p/") {
				t.Errorf("credentials leaked into error: %s", ue.Error())
			}
			if n := atomic.LoadInt32(&hits); n != 1 {
				t.Errorf("upstream hits = %d, want 1 (no retry)", n)
			}
		})
	}
}

func TestOpen_previewTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, strings.Repeat("e", 1000))
	}))
	defer srv.Close()
	_, err := (&Upstream{}).Open(context.Background(), Request{URL: srv.URL})
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatal(err)
	}
	if len(ue.Preview) != PreviewBytes {
		t.Errorf("preview len = %d, want %d", len(ue.Preview), PreviewBytes)
	}
}

func TestOpen_headerTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := &http.Client{Timeout: 50 * time.Millisecond}
	_, err := (&Upstream{Client: client}).Open(context.Background(), Request{URL: srv.URL})
	var ue *UpstreamError
	if !errors.As(err, &ue) || !ue.Timeout {
		t.Fatalf("err = %v, want timeout UpstreamError", err)
	}
}

func TestOpen_invalidURL(t *testing.T) {
	_, err := (&Upstream{}).Open(context.Background(), Request{URL: "file:///etc/passwd"})
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v", err)
	}
}

func TestOpen_idleTimeoutAbortsBody(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		w.Write([]byte("first"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	resp, err := (&Upstream{IdleTimeout: 50 * time.Millisecond}).Open(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Close()
	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(resp.Body)
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Error("expected read error after idle timeout")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("idle timeout did not abort the read")
	}
}

func TestIsMediaType(t *testing.T) {
	for ct, want := range map[string]bool{
		"":                         true,
		"video/mp2t":               true,
		"application/octet-stream": true,
		"text/html":                false,
		"TEXT/HTML; charset=utf-8": false,
		"text/plain":               false,
		"application/json":         false,
	} {
		if got := isMediaType(ct); got != want {
			t.Errorf("isMediaType(%q) = %v, want %v", ct, got, want)
		}
	}
}

func TestIsClientDisconnectWriteError(t *testing.T) {
	if isClientDisconnectWriteError(nil) {
		t.Error("nil is not a disconnect")
	}
	if !isClientDisconnectWriteError(context.Canceled) {
		t.Error("context.Canceled is a disconnect")
	}
	if !isClientDisconnectWriteError(errors.New("write tcp: broken pipe")) {
		t.Error("broken pipe is a disconnect")
	}
	if isClientDisconnectWriteError(errors.New("other")) {
		t.Error("unexpected")
	}
}
