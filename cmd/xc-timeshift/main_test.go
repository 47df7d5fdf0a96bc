package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/snapetech/xc-timeshift/internal/capability"
	"github.com/snapetech/xc-timeshift/internal/catalog"
	"github.com/snapetech/xc-timeshift/internal/config"
)

func provider(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/player_api.php":
			switch r.URL.Query().Get("action") {
			case "":
				fmt.Fprint(w, `{"user_info":{"auth":1,"status":"Active"}}`)
			case "get_live_streams":
				fmt.Fprint(w, `[{"name":"News","stream_id":555,"epg_channel_id":"news.be","tv_archive":1,"tv_archive_duration":5}]`)
			default:
				fmt.Fprint(w, `[]`)
			}
		case "/xmltv.php":
			fmt.Fprint(w, `<tv><programme start="20240310100000 +0000" stop="20240310110000 +0000" channel="news.be"><title>Journal</title></programme></tv>`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func seedCatalog(t *testing.T, path, providerURL string) {
	t.Helper()
	c := catalog.New()
	c.Replace(catalog.Snapshot{
		Accounts: []catalog.Account{{ID: 1, Name: "xc", Type: catalog.AccountXC, ServerURL: providerURL, Username: "pu", Password: "pp"}},
		Users:    []catalog.User{{Username: "alice", XCPassword: "secret", UserLevel: 1}},
	})
	if err := c.Save(path); err != nil {
		t.Fatal(err)
	}
}

func testConfig() *config.Config {
	return &config.Config{IndexConcurrency: 2, IndexTimeout: 10 * time.Second}
}

func TestRunIndex(t *testing.T) {
	p := provider(t)
	for _, name := range []string{"catalog.json", "catalog.db"} {
		path := filepath.Join(t.TempDir(), name)
		if name == "catalog.json" {
			seedCatalog(t, path, p.URL)
		} else {
			jsonPath := filepath.Join(t.TempDir(), "seed.json")
			seedCatalog(t, jsonPath, p.URL)
			seed := catalog.New()
			if err := seed.Load(jsonPath); err != nil {
				t.Fatal(err)
			}
			db, err := catalog.OpenSQLite(path)
			if err != nil {
				t.Fatal(err)
			}
			if err := db.Import(seed.Snapshot()); err != nil {
				t.Fatal(err)
			}
			db.Close()
		}

		args := []string{"-catalog", path, "-settings", filepath.Join(t.TempDir(), "missing.yaml")}
		if err := runIndex(context.Background(), testConfig(), args); err != nil {
			t.Fatalf("%s: runIndex: %v", name, err)
		}

		b, err := catalog.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		chs, _ := b.Store().Channels()
		if len(chs) != 1 || chs[0].EPGChannelID != "news.be" {
			t.Fatalf("%s: channels = %+v", name, chs)
		}
		streams, _ := b.Store().ChannelStreams(chs[0].ID)
		if len(streams) != 1 {
			t.Fatalf("%s: streams = %+v", name, streams)
		}
		if ok, days := capability.Detect(streams[0].Properties); !ok || days != 5 {
			t.Errorf("%s: catch-up = %v, %d", name, ok, days)
		}
		progs, _ := b.Store().Programmes("news.be", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC))
		if len(progs) != 1 {
			t.Errorf("%s: programmes = %+v", name, progs)
		}
		b.Close()
	}
}

func TestRunCheck(t *testing.T) {
	p := provider(t)
	path := filepath.Join(t.TempDir(), "catalog.json")
	seedCatalog(t, path, p.URL)
	if err := runCheck(context.Background(), testConfig(), []string{"-catalog", path}); err != nil {
		t.Fatalf("runCheck: %v", err)
	}
	if err := runCheck(context.Background(), testConfig(), []string{"-catalog", path, "-url", p.URL}); err == nil {
		t.Fatal("expected failure: provider has no /healthz")
	}
}

func TestRunIndex_missingCatalog(t *testing.T) {
	if err := runIndex(context.Background(), testConfig(), []string{"-catalog", filepath.Join(t.TempDir(), "none.json")}); err == nil {
		t.Fatal("expected error for missing catalog")
	}
}
