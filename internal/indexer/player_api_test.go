package indexer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/snapetech/xc-timeshift/internal/capability"
	"github.com/snapetech/xc-timeshift/internal/catalog"
)

// fakeProvider serves player_api.php, xmltv.php and a playlist the way an
// Xtream Codes panel does.
type fakeProvider struct {
	t    *testing.T
	srv  *httptest.Server
	auth int

	mu  sync.Mutex
	uas []string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	p := &fakeProvider{t: t, auth: 1}
	p.srv = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) serve(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.uas = append(p.uas, r.UserAgent())
	p.mu.Unlock()

	q := r.URL.Query()
	switch r.URL.Path {
	case "/player_api.php":
		if q.Get("username") != "pu" || q.Get("password") != "p&p" {
			fmt.Fprint(w, `{"user_info":{"auth":0}}`)
			return
		}
		switch q.Get("action") {
		case "":
			host, port, _ := net.SplitHostPort(r.Host)
			fmt.Fprintf(w, `{"user_info":{"auth":%d,"username":"pu","password":"p&p"},"server_info":{"url":%q,"port":%q,"https_port":"443"}}`, p.auth, host, port)
		case "get_live_categories":
			fmt.Fprint(w, `[{"category_id":"1","category_name":"News"},{"category_id":2,"category_name":"Sport"}]`)
		case "get_live_streams":
			fmt.Fprint(w, `[
				{"num":1,"name":"News HD","stream_id":555,"epg_channel_id":"news.be","stream_icon":"http://logo/n.png","category_id":"1","tv_archive":1,"tv_archive_duration":"7","added":"0"},
				{"num":2,"name":" ","stream_id":"556","epg_channel_id":null,"category_id":"2","tv_archive":0},
				{"num":3,"name":"No id"}
			]`)
		default:
			fmt.Fprint(w, `[]`)
		}
	case "/xmltv.php":
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><tv>
<programme start="20240310100000 +0000" stop="20240310110000 +0000" channel="news.be"><title>Journal</title></programme>
<programme start="20240310100000 +0000" stop="20240310110000 +0000" channel="unrelated"><title>Skip</title></programme>
</tv>`)
	case "/list.m3u":
		fmt.Fprint(w, "#EXTM3U\n#EXTINF:-1 tvg-id=\"local.be\" catchup=\"append\" catchup-days=\"3\",Local\nhttp://cdn.example/local.ts\n")
	default:
		http.NotFound(w, r)
	}
}

func (p *fakeProvider) userAgents() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.uas...)
}

func xcAccount(p *fakeProvider) catalog.Account {
	return catalog.Account{ID: 1, Name: "xc", Type: catalog.AccountXC, ServerURL: p.srv.URL + "/", Username: "pu", Password: "p&p", UserAgent: "Custom/1.0"}
}

func TestXtream(t *testing.T) {
	p := newFakeProvider(t)
	ix := New(nil, 1)
	streams, err := ix.Xtream(context.Background(), xcAccount(p))
	if err != nil {
		t.Fatal(err)
	}
	if len(streams) != 2 {
		t.Fatalf("streams = %d, want 2: %+v", len(streams), streams)
	}

	news := streams[0]
	if want := p.srv.URL + "/live/pu/p&p/555.ts"; news.URL != want {
		t.Errorf("url = %q, want %q", news.URL, want)
	}
	if news.Name != "News HD" || news.TVGID != "news.be" || news.Logo != "http://logo/n.png" || news.Group != "News" {
		t.Errorf("news = %+v", news)
	}
	if id, ok := news.ProviderStreamID(); !ok || id != "555" {
		t.Errorf("provider id = %q, %v", id, ok)
	}
	if ok, days := capability.Detect(news.Properties); !ok || days != 7 {
		t.Errorf("news catch-up = %v, %d; want true, 7", ok, days)
	}
	if _, ok := news.Properties["added"]; ok {
		t.Error("unlisted provider fields should not be kept")
	}

	sports := streams[1]
	if sports.Name != "Channel 556" || sports.Group != "Sport" || sports.TVGID != "" {
		t.Errorf("sports = %+v", sports)
	}
	if _, ok := sports.Properties["epg_channel_id"]; ok {
		t.Error("null fields should be dropped")
	}
	if ok, _ := capability.Detect(sports.Properties); ok {
		t.Error("tv_archive=0 should not advertise catch-up")
	}

	for _, ua := range p.userAgents() {
		if ua != "Custom/1.0" {
			t.Errorf("provider saw User-Agent %q", ua)
		}
	}
}

func TestXtream_authRejected(t *testing.T) {
	p := newFakeProvider(t)
	acct := xcAccount(p)
	acct.Password = "wrong"
	_, err := New(nil, 1).Xtream(context.Background(), acct)
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
}

func TestXtream_errorsDoNotLeakPassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusForbidden)
	}))
	defer srv.Close()
	acct := catalog.Account{Name: "x", Type: catalog.AccountXC, ServerURL: srv.URL, Username: "pu", Password: "s3cret"}
	_, err := New(nil, 1).Xtream(context.Background(), acct)
	if err == nil {
		t.Fatal("expected error for 403")
	}
	if strings.Contains(err.Error(), "s3cret") {
		t.Errorf("error leaks password: %v", err)
	}
	if !strings.Contains(err.Error(), "HTTP 403") {
		t.Errorf("error should carry the status: %v", err)
	}
}

func TestXtream_badServerURL(t *testing.T) {
	_, err := New(nil, 1).Xtream(context.Background(), catalog.Account{Name: "x", ServerURL: "ftp://provider"})
	if err == nil {
		t.Fatal("expected error for non-http server url")
	}
}

func TestResolveStreamBaseURL(t *testing.T) {
	tests := []struct {
		name string
		si   *serverInfo
		want string
	}{
		{"no server info", nil, "http://api.example"},
		{"no port", &serverInfo{URL: "edge.example"}, "http://api.example"},
		{"http port", &serverInfo{URL: "edge.example", Port: "8080", HTTPSPort: "443"}, "http://edge.example:8080"},
		{"default http", &serverInfo{URL: "edge.example", Port: "80"}, "http://edge.example"},
		{"https", &serverInfo{URL: "edge.example", Port: "443", HTTPSPort: "443"}, "https://edge.example"},
		{"numeric port", &serverInfo{URL: "http://edge.example/", Port: float64(25461)}, "http://edge.example:25461"},
	}
	for _, tt := range tests {
		if got := resolveStreamBaseURL("http://api.example", tt.si); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}
