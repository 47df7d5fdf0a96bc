package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned by Store lookups that match nothing.
var ErrNotFound = errors.New("catalog: not found")

// AccountType distinguishes Xtream-Codes accounts from plain M3U sources.
type AccountType string

const (
	AccountXC  AccountType = "XC"
	AccountSTD AccountType = "STD"
)

// DefaultUserAgent is sent upstream when an account has none configured.
const DefaultUserAgent = "VLC/3.0.18 LibVLC/3.0.18"

// AdminLevel users see every channel regardless of its level.
const AdminLevel = 10

// Account is an upstream provider login.
type Account struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Type      AccountType `json:"account_type"`
	ServerURL string      `json:"server_url"`
	Username  string      `json:"username"`
	Password  string      `json:"password"`
	UserAgent string      `json:"user_agent,omitempty"`
	M3UURL    string      `json:"m3u_url,omitempty"`
}

// UA returns the account's User-Agent or DefaultUserAgent.
func (a Account) UA() string {
	if ua := strings.TrimSpace(a.UserAgent); ua != "" {
		return ua
	}
	return DefaultUserAgent
}

// User is a gateway client login. XCPassword is the Xtream API password and
// is distinct from any web password.
type User struct {
	Username   string `json:"username"`
	XCPassword string `json:"xc_password"`
	UserLevel  int    `json:"user_level"`
}

// CanSee reports whether u may list and play ch.
func (u User) CanSee(ch Channel) bool {
	return u.UserLevel >= AdminLevel || u.UserLevel >= ch.UserLevel
}

// Stream is one upstream source. Properties holds whatever the provider
// reported for it; "stream_id" there is the provider's own key.
type Stream struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	URL        string         `json:"url"`
	AccountID  int64          `json:"account_id"`
	TVGID      string         `json:"tvg_id,omitempty"`
	Logo       string         `json:"logo,omitempty"`
	Group      string         `json:"group,omitempty"`
	Properties map[string]any `json:"custom_properties,omitempty"`
}

// ProviderStreamID returns the provider-side stream key, if recorded.
func (s Stream) ProviderStreamID() (string, bool) {
	id := propString(s.Properties["stream_id"])
	return id, id != ""
}

func propString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	return ""
}

// Channel is what clients browse. StreamIDs is ordered by preference.
type Channel struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Number       float64 `json:"number"`
	EPGChannelID string  `json:"epg_channel_id,omitempty"`
	StreamIDs    []int64 `json:"streams"`
	UserLevel    int     `json:"user_level,omitempty"`
	Logo         string  `json:"logo,omitempty"`
	CategoryID   string  `json:"category_id,omitempty"`
}

// GuideNumber is Number without a trailing ".0".
func (c Channel) GuideNumber() string {
	return strconv.FormatFloat(c.Number, 'f', -1, 64)
}

// Programme is one EPG entry.
type Programme struct {
	EPGChannelID string    `json:"epg_channel_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Start        time.Time `json:"start"`
	Stop         time.Time `json:"stop"`
}

// Catalog is the in-memory catalog, persisted as one JSON document.
type Catalog struct {
	mu         sync.RWMutex
	accounts   []Account
	users      []User
	streams    []Stream
	channels   []Channel
	programmes []Programme
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{}
}

// Snapshot is a detached copy of the catalog contents and its JSON form.
type Snapshot struct {
	Accounts   []Account   `json:"accounts"`
	Users      []User      `json:"users"`
	Streams    []Stream    `json:"streams"`
	Channels   []Channel   `json:"channels"`
	Programmes []Programme `json:"programmes,omitempty"`
}

func (c *Catalog) doc() Snapshot {
	return Snapshot{
		Accounts:   c.accounts,
		Users:      c.users,
		Streams:    c.streams,
		Channels:   c.channels,
		Programmes: c.programmes,
	}
}

// Replace swaps the whole catalog contents.
func (c *Catalog) Replace(d Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts = d.Accounts
	c.users = d.Users
	c.streams = d.Streams
	c.channels = d.Channels
	c.programmes = d.Programmes
}

// Snapshot returns a copy for read-only use. Slices are copied; Properties
// maps are shared and must not be mutated.
func (c *Catalog) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Accounts:   append([]Account(nil), c.accounts...),
		Users:      append([]User(nil), c.users...),
		Streams:    append([]Stream(nil), c.streams...),
		Channels:   append([]Channel(nil), c.channels...),
		Programmes: append([]Programme(nil), c.programmes...),
	}
}

// Save writes the catalog to path as JSON using a temp-file-then-rename strategy
// so readers never see a partially-written file.
func (c *Catalog) Save(path string) error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c.doc(), "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	dir := filepath.Dir(filepath.Clean(path))
	tmp, err := os.CreateTemp(dir, ".catalog-*.json.tmp")
	if err != nil {
		return fmt.Errorf("catalog save: create temp: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("catalog save: write: %w", writeErr)
		}
		return fmt.Errorf("catalog save: close: %w", closeErr)
	}
	// Accounts carry provider passwords.
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("catalog save: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("catalog save: rename: %w", err)
	}
	return nil
}

// Load replaces the catalog with the contents of path (JSON).
func (c *Catalog) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var d Snapshot
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("catalog load %s: %w", path, err)
	}
	c.Replace(d)
	return nil
}

// ReplaceAccountStreams installs a fresh stream list for one account.
// Streams keep their internal ID across re-indexes when the provider stream
// id (or, failing that, the URL) is unchanged. New streams get a channel of
// their own; channels left with no streams are removed. It returns the number
// of streams added and removed.
func (c *Catalog) ReplaceAccountStreams(accountID int64, fresh []Stream) (added, removed int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing := map[string]int64{}
	var nextStream, nextChannel int64
	var maxNumber float64
	kept := c.streams[:0:0]
	for _, s := range c.streams {
		if s.ID > nextStream {
			nextStream = s.ID
		}
		if s.AccountID == accountID {
			existing[streamKey(s)] = s.ID
			continue
		}
		kept = append(kept, s)
	}
	for _, ch := range c.channels {
		if ch.ID > nextChannel {
			nextChannel = ch.ID
		}
		if ch.Number > maxNumber {
			maxNumber = ch.Number
		}
	}

	live := map[int64]bool{}
	var newStreams []Stream
	for _, s := range fresh {
		s.AccountID = accountID
		if id, ok := existing[streamKey(s)]; ok {
			s.ID = id
		} else {
			nextStream++
			s.ID = nextStream
			newStreams = append(newStreams, s)
		}
		live[s.ID] = true
		kept = append(kept, s)
	}
	for _, id := range existing {
		if !live[id] {
			removed++
		}
	}
	c.streams = kept
	sort.Slice(c.streams, func(i, j int) bool { return c.streams[i].ID < c.streams[j].ID })

	alive := map[int64]bool{}
	for _, s := range c.streams {
		alive[s.ID] = true
	}
	channels := c.channels[:0:0]
	for _, ch := range c.channels {
		ids := ch.StreamIDs[:0:0]
		for _, id := range ch.StreamIDs {
			if alive[id] {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 && len(ch.StreamIDs) > 0 {
			continue
		}
		ch.StreamIDs = ids
		channels = append(channels, ch)
	}
	for _, s := range newStreams {
		nextChannel++
		maxNumber = math.Floor(maxNumber) + 1
		channels = append(channels, Channel{
			ID:           nextChannel,
			Name:         s.Name,
			Number:       maxNumber,
			EPGChannelID: s.TVGID,
			StreamIDs:    []int64{s.ID},
			Logo:         s.Logo,
			CategoryID:   s.Group,
		})
	}
	c.channels = channels
	return len(newStreams), removed
}

func streamKey(s Stream) string {
	if id, ok := s.ProviderStreamID(); ok {
		return "sid:" + id
	}
	return "url:" + s.URL
}

// ReplaceProgrammes swaps the guide data for every EPG channel id present in
// fresh. Programmes for other channel ids are kept.
func (c *Catalog) ReplaceProgrammes(fresh []Programme) {
	ids := map[string]bool{}
	for _, p := range fresh {
		ids[p.EPGChannelID] = true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.programmes[:0:0]
	for _, p := range c.programmes {
		if !ids[p.EPGChannelID] {
			kept = append(kept, p)
		}
	}
	kept = append(kept, fresh...)
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].EPGChannelID != kept[j].EPGChannelID {
			return kept[i].EPGChannelID < kept[j].EPGChannelID
		}
		return kept[i].Start.Before(kept[j].Start)
	})
	c.programmes = kept
}
