package indexer

import (
	"strings"
	"testing"
	"time"
)

const guideXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE tv SYSTEM "xmltv.dtd">
<tv generator-info-name="provider">
  <channel id="news.be"><display-name>News</display-name></channel>
  <programme start="20240310100000 +0100" stop="20240310110000 +0100" channel="news.be">
    <title lang="fr">Journal</title>
    <title lang="nl">Journaal</title>
    <desc lang="nl">Nieuws</desc>
  </programme>
  <programme start="20240310110000 +0000" stop="20240310113000 +0000" channel="news.be">
    <title>Weather</title>
  </programme>
  <programme start="bogus" stop="20240310113000 +0000" channel="news.be">
    <title>Broken</title>
  </programme>
  <programme start="20240310110000 +0000" stop="20240310120000 +0000" channel="other.be">
    <title>Elsewhere</title>
  </programme>
</tv>`

func TestParseXMLTV(t *testing.T) {
	progs, err := ParseXMLTV(strings.NewReader(guideXML), map[string]bool{"news.be": true}, "nl")
	if err != nil {
		t.Fatal(err)
	}
	if len(progs) != 2 {
		t.Fatalf("programmes = %d, want 2: %+v", len(progs), progs)
	}
	first := progs[0]
	if first.Title != "Journaal" || first.Description != "Nieuws" {
		t.Errorf("language preference ignored: %+v", first)
	}
	if want := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC); !first.Start.Equal(want) {
		t.Errorf("start = %s, want %s", first.Start, want)
	}
	if progs[1].Title != "Weather" || progs[1].Stop.Sub(progs[1].Start) != 30*time.Minute {
		t.Errorf("second = %+v", progs[1])
	}
}

func TestParseXMLTV_allChannels(t *testing.T) {
	progs, err := ParseXMLTV(strings.NewReader(guideXML), nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(progs) != 3 {
		t.Fatalf("programmes = %d, want 3", len(progs))
	}
	if progs[0].Title != "Journal" {
		t.Errorf("without a language the first title wins: %q", progs[0].Title)
	}
}

func TestParseXMLTV_noRoot(t *testing.T) {
	if _, err := ParseXMLTV(strings.NewReader(`<?xml version="1.0"?><html></html>`), nil, ""); err == nil {
		t.Fatal("expected error for document without <tv>")
	}
}

func TestParseXMLTVTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"20240310100000 +0100", time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), true},
		{"20240310100000", time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC), true},
		{"202403101000 -0200", time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"2024-03-10", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := parseXMLTVTime(tt.in)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("parseXMLTVTime(%q) = %s, %v; want %s, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
