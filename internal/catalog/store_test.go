package catalog

import (
	"path/filepath"
	"testing"
	"time"
)

// storeSuite runs the same assertions against every Store implementation.
func storeSuite(t *testing.T, s Store) {
	t.Helper()

	chs, err := s.Channels()
	if err != nil {
		t.Fatalf("Channels: %v", err)
	}
	if len(chs) != 2 || chs[0].ID != 1 || chs[1].ID != 3 {
		t.Errorf("Channels order = %+v, want ids [1 3] by number", chs)
	}
	if len(chs[0].StreamIDs) != 2 || chs[0].StreamIDs[0] != 11 || chs[0].StreamIDs[1] != 10 {
		t.Errorf("channel 1 stream order = %v, want [11 10]", chs[0].StreamIDs)
	}

	if _, err := s.Channel(99); err != ErrNotFound {
		t.Errorf("Channel(99) err = %v, want ErrNotFound", err)
	}
	if _, err := s.Stream(99); err != ErrNotFound {
		t.Errorf("Stream(99) err = %v, want ErrNotFound", err)
	}
	if _, err := s.Account(99); err != ErrNotFound {
		t.Errorf("Account(99) err = %v, want ErrNotFound", err)
	}
	if _, err := s.User("bob"); err != ErrNotFound {
		t.Errorf("User(bob) err = %v, want ErrNotFound", err)
	}

	streams, err := s.ChannelStreams(1)
	if err != nil {
		t.Fatalf("ChannelStreams: %v", err)
	}
	if len(streams) != 2 || streams[0].ID != 11 || streams[1].ID != 10 {
		t.Errorf("ChannelStreams(1) = %+v", streams)
	}
	if _, err := s.ChannelStreams(99); err != ErrNotFound {
		t.Errorf("ChannelStreams(99) err = %v", err)
	}

	st, err := s.Stream(10)
	if err != nil {
		t.Fatal(err)
	}
	if id, ok := st.ProviderStreamID(); !ok || id != "555" {
		t.Errorf("ProviderStreamID = %q, %v", id, ok)
	}
	if st.Properties["tv_archive"] != float64(1) {
		t.Errorf("tv_archive = %#v", st.Properties["tv_archive"])
	}

	carriers, err := s.StreamChannels(10)
	if err != nil || len(carriers) != 1 || carriers[0].ID != 1 {
		t.Errorf("StreamChannels(10) = %+v, %v", carriers, err)
	}

	xc, err := s.StreamsByAccountType(AccountXC)
	if err != nil {
		t.Fatal(err)
	}
	if len(xc) != 2 || xc[0].ID != 10 || xc[1].ID != 11 {
		t.Errorf("StreamsByAccountType(XC) = %+v", xc)
	}

	a, err := s.Account(1)
	if err != nil || a.Type != AccountXC || a.UA() != DefaultUserAgent {
		t.Errorf("Account(1) = %+v, %v", a, err)
	}
	u, err := s.User("alice")
	if err != nil || u.XCPassword != "secret" {
		t.Errorf("User(alice) = %+v, %v", u, err)
	}

	progs, err := s.Programmes("news.be", time.Unix(1700000000, 0), time.Unix(1700010000, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(progs) != 2 || progs[0].Title != "Early" || progs[1].Title != "Late" {
		t.Errorf("Programmes = %+v", progs)
	}
	progs, _ = s.Programmes("news.be", time.Unix(1700004000, 0), time.Unix(1700005000, 0))
	if len(progs) != 1 || progs[0].Title != "Late" {
		t.Errorf("Programmes window = %+v", progs)
	}
	if progs, _ := s.Programmes("", time.Time{}, time.Now()); len(progs) != 0 {
		t.Errorf("empty epg id should match nothing: %+v", progs)
	}
}

func TestCatalogStore(t *testing.T) {
	c := New()
	c.Replace(fixture())
	storeSuite(t, c)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()
	if err := s.Import(fixture()); err != nil {
		t.Fatalf("Import: %v", err)
	}
	storeSuite(t, s)

	// Import replaces rather than appends.
	if err := s.Import(fixture()); err != nil {
		t.Fatalf("second Import: %v", err)
	}
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Streams) != 3 || len(snap.Channels) != 2 || len(snap.Programmes) != 2 {
		t.Errorf("snapshot after re-import: %d streams %d channels %d programmes", len(snap.Streams), len(snap.Channels), len(snap.Programmes))
	}
}

func TestIsSQLitePath(t *testing.T) {
	for path, want := range map[string]bool{
		"catalog.json":     false,
		"catalog.db":       true,
		"/var/x.SQLITE":    true,
		"x.sqlite3":        true,
		"no-extension":     false,
		"catalog.json.bak": false,
	} {
		if got := IsSQLitePath(path); got != want {
			t.Errorf("IsSQLitePath(%q) = %v, want %v", path, got, want)
		}
	}
}
