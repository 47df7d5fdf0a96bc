// Package augment rewrites XC listings so clients see catch-up support and
// address channels by the provider's stream id.
package augment

import (
	"strconv"
	"time"

	"github.com/snapetech/xc-timeshift/internal/capability"
	"github.com/snapetech/xc-timeshift/internal/catalog"
	"github.com/snapetech/xc-timeshift/internal/config"
	"github.com/snapetech/xc-timeshift/internal/resolver"
	"github.com/snapetech/xc-timeshift/internal/xtream"
)

// Augmenter is an xtream.ListingHook and xtream.ChannelLookup. Everything is
// a no-op while catch-up is disabled in settings.
type Augmenter struct {
	Resolver *resolver.Resolver
	Settings config.SettingsSource
	Now      func() time.Time
}

var (
	_ xtream.ListingHook   = (*Augmenter)(nil)
	_ xtream.ChannelLookup = (*Augmenter)(nil)
)

// New returns an Augmenter over store.
func New(store catalog.Store, settings config.SettingsSource) *Augmenter {
	if settings == nil {
		settings = config.StaticSettings(config.DefaultSettings())
	}
	return &Augmenter{Resolver: resolver.New(store), Settings: settings, Now: time.Now}
}

func (a *Augmenter) enabled() bool { return a.Settings.Settings().Enabled }

// AugmentLiveStreams sets tv_archive and tv_archive_duration from the
// channel's primary stream and swaps stream_id for the provider's numeric id.
// Entries are keyed by their internal ChannelID, so running it twice gives
// the same result.
func (a *Augmenter) AugmentLiveStreams(in []xtream.LiveStream) []xtream.LiveStream {
	if !a.enabled() {
		return in
	}
	out := make([]xtream.LiveStream, len(in))
	copy(out, in)
	for i := range out {
		if out[i].ChannelID == 0 {
			continue
		}
		s, ok := a.Resolver.PrimaryStream(catalog.Channel{ID: out[i].ChannelID})
		if !ok {
			continue
		}
		has, days := capability.Detect(s.Properties)
		out[i].TVArchive, out[i].TVArchiveDuration = 0, 0
		if has {
			out[i].TVArchive, out[i].TVArchiveDuration = 1, days
		}
		if pid, ok := s.ProviderStreamID(); ok {
			if n, err := strconv.ParseInt(pid, 10, 64); err == nil {
				out[i].StreamID = n
			}
		}
	}
	return out
}

// AugmentEPG marks programmes that have ended within the channel's archive
// window with has_archive=1.
func (a *Augmenter) AugmentEPG(ch catalog.Channel, in []xtream.EPGListing) []xtream.EPGListing {
	if !a.enabled() {
		return in
	}
	s, ok := a.Resolver.PrimaryStream(ch)
	if !ok {
		return in
	}
	has, days := capability.Detect(s.Properties)
	now := time.Now()
	if a.Now != nil {
		now = a.Now()
	}
	oldest := now.Add(-time.Duration(days) * 24 * time.Hour)
	out := make([]xtream.EPGListing, len(in))
	copy(out, in)
	for i := range out {
		out[i].HasArchive = 0
		stop := out[i].StopTime
		if has && days > 0 && !stop.IsZero() && !stop.After(now) && !stop.Before(oldest) {
			out[i].HasArchive = 1
		}
	}
	return out
}

// LookupChannel resolves a provider stream id a client got from a rewritten
// listing.
func (a *Augmenter) LookupChannel(id string, scope resolver.Scope) (catalog.Channel, bool) {
	if !a.enabled() {
		return catalog.Channel{}, false
	}
	m, ok := a.Resolver.StreamForProvider(id, scope)
	return m.Channel, ok
}
