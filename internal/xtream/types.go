package xtream

import (
	"net/http"
	"time"

	"github.com/snapetech/xc-timeshift/internal/catalog"
	"github.com/snapetech/xc-timeshift/internal/resolver"
)

// LiveStream is one get_live_streams entry. ChannelID is the internal key;
// it never leaves the host.
type LiveStream struct {
	Num               int    `json:"num"`
	Name              string `json:"name"`
	StreamType        string `json:"stream_type"`
	StreamID          int64  `json:"stream_id"`
	StreamIcon        string `json:"stream_icon"`
	EPGChannelID      string `json:"epg_channel_id"`
	Added             string `json:"added"`
	CategoryID        string `json:"category_id"`
	CustomSID         string `json:"custom_sid"`
	TVArchive         int    `json:"tv_archive"`
	DirectSource      string `json:"direct_source"`
	TVArchiveDuration int    `json:"tv_archive_duration"`

	ChannelID int64 `json:"-"`
}

// EPGListing is one get_short_epg / get_simple_data_table entry. Title and
// Description are base64, as XC clients expect.
type EPGListing struct {
	ID             string `json:"id"`
	EPGID          string `json:"epg_id"`
	Title          string `json:"title"`
	Lang           string `json:"lang"`
	Start          string `json:"start"`
	End            string `json:"end"`
	Description    string `json:"description"`
	ChannelID      string `json:"channel_id"`
	StartTimestamp string `json:"start_timestamp"`
	StopTimestamp  string `json:"stop_timestamp"`
	NowPlaying     int    `json:"now_playing"`
	HasArchive     int    `json:"has_archive"`

	StartTime time.Time `json:"-"`
	StopTime  time.Time `json:"-"`
}

// Category is one get_live_categories entry.
type Category struct {
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
	ParentID     int    `json:"parent_id"`
}

// ListingHook post-processes listings before they are encoded. Hooks must
// not mutate their input slices.
type ListingHook interface {
	AugmentLiveStreams(in []LiveStream) []LiveStream
	AugmentEPG(ch catalog.Channel, in []EPGListing) []EPGListing
}

// Interceptor may claim a request before routing. It is consulted ahead of
// every route including the catch-all not-found handler.
type Interceptor interface {
	Intercept(r *http.Request) (http.Handler, bool)
}

// ChannelLookup maps an identifier a client received from a listing back to
// a channel. The host falls back to its internal-id lookup on a miss.
type ChannelLookup interface {
	LookupChannel(id string, scope resolver.Scope) (catalog.Channel, bool)
}
