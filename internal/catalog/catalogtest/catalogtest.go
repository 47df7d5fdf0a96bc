// Package catalogtest builds a small catalog shared by package tests.
package catalogtest

import (
	"time"

	"github.com/snapetech/xc-timeshift/internal/catalog"
)

// Fixture contents, by id:
//
//	account 1  XC  provider (user xcuser / xcpass)
//	account 2  STD plain M3U
//	stream 10  acct 1 stream_id "555" tv_archive 1, 7 days
//	stream 11  acct 1 stream_id 556 (number), no archive
//	stream 20  acct 2 no stream_id, catchup=append catchup-days=3
//	stream 30  acct 1 stream_id "777" tv_archive 1, 3 days
//	stream 40  acct 1 stream_id "abc" tv_archive 1
//	channel 1  "News"   no 1  epg news.be    streams [20 10]
//	channel 2  "Sports" no 2  epg sports.be  streams [11]
//	channel 3  "Local"  no 3                 streams [20]
//	channel 4  "Late"   no 4  level 5        streams [30]
//	channel 5  "Odd"    no 5.5               streams [40]
//	users: alice/secret (1), admin/root (10), nopass (no xc password)
const (
	ProviderURL = "http://provider.example:8080/"
	XCUser      = "xcuser"
	XCPass      = "xcpass"
)

// New returns the fixture catalog. Programmes on news.be are placed
// relative to now: one ended two days ago, one ended ten days ago, one airing.
func New(now time.Time) *catalog.Catalog {
	c := catalog.New()
	c.Replace(Snapshot(now))
	return c
}

// Snapshot returns the fixture document.
func Snapshot(now time.Time) catalog.Snapshot {
	now = now.UTC().Truncate(time.Minute)
	return catalog.Snapshot{
		Accounts: []catalog.Account{
			{ID: 1, Name: "provider", Type: catalog.AccountXC, ServerURL: ProviderURL, Username: XCUser, Password: XCPass},
			{ID: 2, Name: "m3u", Type: catalog.AccountSTD, M3UURL: "http://m3u.example/list.m3u", UserAgent: "Custom/1.0"},
		},
		Users: []catalog.User{
			{Username: "alice", XCPassword: "secret", UserLevel: 1},
			{Username: "admin", XCPassword: "root", UserLevel: catalog.AdminLevel},
			{Username: "nopass", UserLevel: 1},
		},
		Streams: []catalog.Stream{
			{ID: 10, Name: "News HD", URL: "http://provider.example:8080/live/xcuser/xcpass/555.ts", AccountID: 1,
				Properties: map[string]any{"stream_id": "555", "tv_archive": 1, "tv_archive_duration": "7"}},
			{ID: 11, Name: "Sports", URL: "http://provider.example:8080/live/xcuser/xcpass/556.ts", AccountID: 1,
				Properties: map[string]any{"stream_id": float64(556)}},
			{ID: 20, Name: "News (m3u)", URL: "http://m3u.example/news.ts", AccountID: 2,
				Properties: map[string]any{"catchup": "append", "catchup-days": "3"}},
			{ID: 30, Name: "Late", URL: "http://provider.example:8080/live/xcuser/xcpass/777.ts", AccountID: 1,
				Properties: map[string]any{"stream_id": "777", "tv_archive": "1", "tv_archive_duration": 3}},
			{ID: 40, Name: "Odd", URL: "http://provider.example:8080/live/xcuser/xcpass/abc.ts", AccountID: 1,
				Properties: map[string]any{"stream_id": "abc", "tv_archive": true}},
		},
		Channels: []catalog.Channel{
			{ID: 1, Name: "News", Number: 1, EPGChannelID: "news.be", StreamIDs: []int64{20, 10}, CategoryID: "1"},
			{ID: 2, Name: "Sports", Number: 2, EPGChannelID: "sports.be", StreamIDs: []int64{11}, CategoryID: "2"},
			{ID: 3, Name: "Local", Number: 3, StreamIDs: []int64{20}, CategoryID: "1"},
			{ID: 4, Name: "Late", Number: 4, StreamIDs: []int64{30}, UserLevel: 5},
			{ID: 5, Name: "Odd", Number: 5.5, StreamIDs: []int64{40}},
		},
		Programmes: []catalog.Programme{
			{EPGChannelID: "news.be", Title: "Old news", Start: now.Add(-10*24*time.Hour - time.Hour), Stop: now.Add(-10 * 24 * time.Hour)},
			{EPGChannelID: "news.be", Title: "Morning news", Description: "Headlines", Start: now.Add(-2*24*time.Hour - time.Hour), Stop: now.Add(-2 * 24 * time.Hour)},
			{EPGChannelID: "news.be", Title: "Live now", Start: now.Add(-30 * time.Minute), Stop: now.Add(30 * time.Minute)},
		},
	}
}
