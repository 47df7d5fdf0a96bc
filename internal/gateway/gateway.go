package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/snapetech/xc-timeshift/internal/httpclient"
	"github.com/snapetech/xc-timeshift/internal/safeurl"
)

const (
	// DefaultContentType is sent when the provider omits Content-Type.
	DefaultContentType = "video/mp2t"
	// PreviewBytes bounds how much of a rejected body is kept for diagnostics.
	PreviewBytes = 200

	copyBufferBytes = 32 << 10
)

// Headers copied from the provider response so clients can seek.
var relayHeaders = []string{"Content-Length", "Content-Range", "Accept-Ranges"}

// UpstreamError describes a provider response (or lack of one) that is not relayed.
type UpstreamError struct {
	URL         string // redacted
	Status      int
	ContentType string
	Preview     string
	Timeout     bool
	Err         error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("upstream timeout url=%s", e.URL)
	case e.Err != nil:
		return fmt.Sprintf("upstream request url=%s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("upstream status=%d content-type=%q url=%s", e.Status, e.ContentType, e.URL)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Request is one outbound fetch.
type Request struct {
	URL       string
	UserAgent string
	Range     string // forwarded verbatim when set
}

// Upstream opens provider media URLs. The zero value works with sane defaults.
type Upstream struct {
	Client      *http.Client
	Limiter     *httpclient.HostLimiter
	IdleTimeout time.Duration // abort the relay when no bytes arrive for this long; 0 disables
}

// Response is an accepted provider response. Body reads are guarded by the
// idle timeout; Close must be called.
type Response struct {
	Status      int
	ContentType string
	Header      http.Header
	Body        io.ReadCloser
}

// Close releases the upstream connection.
func (r *Response) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// Open issues a single GET (no retries). Anything other than a 200/206 media
// response comes back as *UpstreamError. Errors caused by ctx being cancelled
// (client went away) are returned unwrapped.
func (u *Upstream) Open(ctx context.Context, in Request) (*Response, error) {
	redacted := safeurl.RedactURL(in.URL)
	if !safeurl.IsHTTPOrHTTPS(in.URL) {
		return nil, &UpstreamError{URL: redacted, Err: errors.New("invalid upstream url")}
	}
	if err := u.Limiter.Wait(ctx, in.URL); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &UpstreamError{URL: redacted, Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
	if err != nil {
		cancel()
		return nil, &UpstreamError{URL: redacted, Err: err}
	}
	if in.UserAgent != "" {
		req.Header.Set("User-Agent", in.UserAgent)
	}
	if in.Range != "" {
		req.Header.Set("Range", in.Range)
	}

	client := u.Client
	if client == nil {
		client = httpclient.ForStreaming(0)
	}
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, err
		}
		return nil, &UpstreamError{URL: redacted, Timeout: isTimeout(err), Err: err}
	}

	ct := resp.Header.Get("Content-Type")
	if (resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent) || !isMediaType(ct) {
		preview := readPreview(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, &UpstreamError{URL: redacted, Status: resp.StatusCode, ContentType: ct, Preview: preview}
	}

	return &Response{
		Status:      resp.StatusCode,
		ContentType: ct,
		Header:      resp.Header,
		Body:        newIdleReader(resp.Body, u.IdleTimeout, cancel),
	}, nil
}

// Relay writes resp's status, seek headers and body to w, flushing as bytes
// arrive. It returns the bytes written; a client disconnect is not an error.
func Relay(w http.ResponseWriter, resp *Response) (int64, error) {
	h := w.Header()
	ct := resp.ContentType
	if ct == "" {
		ct = DefaultContentType
	}
	h.Set("Content-Type", ct)
	for _, k := range relayHeaders {
		if v := resp.Header.Get(k); v != "" {
			h.Set(k, v)
		}
	}
	w.WriteHeader(resp.Status)

	n, err := io.CopyBuffer(newFlushWriter(w), resp.Body, make([]byte, copyBufferBytes))
	if err != nil && isClientDisconnectWriteError(err) {
		return n, nil
	}
	return n, err
}

// isMediaType rejects bodies that are clearly provider error pages.
func isMediaType(ct string) bool {
	if ct == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(ct))
	}
	switch {
	case mt == "application/json", strings.HasPrefix(mt, "text/"):
		return false
	}
	return true
}

func readPreview(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, PreviewBytes))
	if len(b) == 0 {
		return "empty"
	}
	return strings.ToValidUTF8(string(b), "?")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isClientDisconnectWriteError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "use of closed network connection")
}

// flushWriter pushes each chunk to the client so players start quickly.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newFlushWriter(w http.ResponseWriter) *flushWriter {
	f, _ := w.(http.Flusher)
	return &flushWriter{w: w, f: f}
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err == nil && fw.f != nil {
		fw.f.Flush()
	}
	return n, err
}

// idleReader cancels the upstream request when no Read completes within d.
type idleReader struct {
	rc     io.ReadCloser
	d      time.Duration
	timer  *time.Timer
	cancel context.CancelFunc
	once   sync.Once
}

func newIdleReader(rc io.ReadCloser, d time.Duration, cancel context.CancelFunc) *idleReader {
	r := &idleReader{rc: rc, d: d, cancel: cancel}
	if d > 0 {
		r.timer = time.AfterFunc(d, cancel)
	}
	return r
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if r.timer != nil && n > 0 {
		r.timer.Reset(r.d)
	}
	return n, err
}

func (r *idleReader) Close() error {
	var err error
	r.once.Do(func() {
		if r.timer != nil {
			r.timer.Stop()
		}
		err = r.rc.Close()
		r.cancel()
	})
	return err
}
