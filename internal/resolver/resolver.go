// Package resolver maps provider stream ids to internal channels and back.
//
// Clients only ever see the provider's stream_id once listings are
// rewritten, so every inbound id has to be resolved through here. All
// lookups are total: store failures are logged and reported as a miss.
package resolver

import (
	"errors"
	"log"
	"strings"

	"github.com/snapetech/xc-timeshift/internal/catalog"
)

// Scope selects how a provider id is matched.
type Scope int

const (
	// ScopeLive scans streams of XC accounts, then takes the stream's first channel.
	ScopeLive Scope = iota
	// ScopeEPG scans channels and compares each channel's primary stream.
	ScopeEPG
)

func (s Scope) String() string {
	if s == ScopeEPG {
		return "epg"
	}
	return "live"
}

// Match is a resolved channel and the stream whose provider id matched.
type Match struct {
	Channel catalog.Channel
	Stream  catalog.Stream
}

// Resolver answers identifier lookups against a catalog.
type Resolver struct {
	Store catalog.Store
}

// New returns a Resolver over store.
func New(store catalog.Store) *Resolver {
	return &Resolver{Store: store}
}

// ProviderIDFor returns the provider stream id recorded on stream streamID.
func (r *Resolver) ProviderIDFor(streamID int64) (string, bool) {
	s, err := r.Store.Stream(streamID)
	if err != nil {
		logStoreErr("stream", err)
		return "", false
	}
	return s.ProviderStreamID()
}

// StreamForProvider finds the channel carrying providerID.
func (r *Resolver) StreamForProvider(providerID string, scope Scope) (Match, bool) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return Match{}, false
	}
	if scope == ScopeEPG {
		return r.forEPG(providerID)
	}
	return r.forLive(providerID)
}

func (r *Resolver) forLive(providerID string) (Match, bool) {
	streams, err := r.Store.StreamsByAccountType(catalog.AccountXC)
	if err != nil {
		logStoreErr("streams", err)
		return Match{}, false
	}
	for _, s := range streams {
		if id, ok := s.ProviderStreamID(); !ok || id != providerID {
			continue
		}
		chs, err := r.Store.StreamChannels(s.ID)
		if err != nil {
			logStoreErr("stream channels", err)
			return Match{}, false
		}
		if len(chs) == 0 {
			log.Printf("resolver: provider_stream_id=%s stream=%d has no channel", providerID, s.ID)
			return Match{}, false
		}
		return Match{Channel: chs[0], Stream: s}, true
	}
	return Match{}, false
}

func (r *Resolver) forEPG(providerID string) (Match, bool) {
	chs, err := r.Store.Channels()
	if err != nil {
		logStoreErr("channels", err)
		return Match{}, false
	}
	for _, ch := range chs {
		s, ok := r.PrimaryStream(ch)
		if !ok {
			continue
		}
		if id, ok := s.ProviderStreamID(); ok && id == providerID {
			return Match{Channel: ch, Stream: s}, true
		}
	}
	return Match{}, false
}

// ChannelForEPG matches token against EPG channel ids first, then guide numbers.
func (r *Resolver) ChannelForEPG(token string) (catalog.Channel, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return catalog.Channel{}, false
	}
	chs, err := r.Store.Channels()
	if err != nil {
		logStoreErr("channels", err)
		return catalog.Channel{}, false
	}
	for _, ch := range chs {
		if ch.EPGChannelID != "" && ch.EPGChannelID == token {
			return ch, true
		}
	}
	for _, ch := range chs {
		if ch.GuideNumber() == token {
			return ch, true
		}
	}
	return catalog.Channel{}, false
}

// PrimaryStream is the stream a channel is advertised by: the first stream,
// in channel order, that comes from an XC account and carries a provider id.
// Without one, the channel's first stream.
func (r *Resolver) PrimaryStream(ch catalog.Channel) (catalog.Stream, bool) {
	streams, err := r.Store.ChannelStreams(ch.ID)
	if err != nil {
		logStoreErr("channel streams", err)
		return catalog.Stream{}, false
	}
	if len(streams) == 0 {
		return catalog.Stream{}, false
	}
	xc := map[int64]bool{}
	for _, s := range streams {
		if _, ok := s.ProviderStreamID(); !ok {
			continue
		}
		isXC, seen := xc[s.AccountID]
		if !seen {
			acct, err := r.Store.Account(s.AccountID)
			isXC = err == nil && acct.Type == catalog.AccountXC
			xc[s.AccountID] = isXC
		}
		if isXC {
			return s, true
		}
	}
	return streams[0], true
}

func logStoreErr(what string, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		return
	}
	log.Printf("resolver: %s lookup failed: %v", what, err)
}
