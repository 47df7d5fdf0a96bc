package xtream

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Bodies below this size are sent as-is.
const compressMinBytes = 1024

var gzipWriterPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	},
}

// acceptedEncoding picks br over gzip when the client offers both.
func acceptedEncoding(r *http.Request) string {
	var gz bool
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if q, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if f, err := strconv.ParseFloat(q, 64); err == nil && f == 0 {
				continue
			}
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "br":
			return "br"
		case "gzip":
			gz = true
		}
	}
	if gz {
		return "gzip"
	}
	return ""
}

// writeJSON encodes v and writes it, compressed when the client allows and
// the body is large enough to benefit.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Printf("xtream: encode response path=%s err=%v", r.URL.Path, err)
		http.Error(w, "encode error", http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Add("Vary", "Accept-Encoding")

	enc := ""
	if len(body) >= compressMinBytes {
		enc = acceptedEncoding(r)
	}
	if enc == "" {
		w.WriteHeader(status)
		_, _ = w.Write(body)
		return
	}

	var buf bytes.Buffer
	switch enc {
	case "br":
		bw := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
		_, _ = bw.Write(body)
		err = bw.Close()
	case "gzip":
		gz := gzipWriterPool.Get().(*gzip.Writer)
		gz.Reset(&buf)
		_, _ = gz.Write(body)
		err = gz.Close()
		gzipWriterPool.Put(gz)
	}
	if err != nil {
		log.Printf("xtream: compress %s path=%s err=%v", enc, r.URL.Path, err)
		w.WriteHeader(status)
		_, _ = w.Write(body)
		return
	}
	h.Set("Content-Encoding", enc)
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
