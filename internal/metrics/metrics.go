// Package metrics holds the process-wide Prometheus collectors served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stream kinds used as the "kind" label.
const (
	KindLive      = "live"
	KindTimeshift = "timeshift"
)

// TimeshiftRequests counts catch-up requests by final outcome
// (streamed, unauthorized, not_found, unsupported, bad_request,
// upstream_error, upstream_timeout, client_gone).
var TimeshiftRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "xc_timeshift_requests_total",
	Help: "Catch-up requests by outcome.",
}, []string{"outcome"})

// UpstreamBytes counts media bytes relayed to clients.
var UpstreamBytes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "xc_timeshift_relayed_bytes_total",
	Help: "Media bytes relayed from providers to clients.",
}, []string{"kind"})

// ActiveStreams is the number of relays currently open.
var ActiveStreams = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "xc_timeshift_active_streams",
	Help: "Relays currently streaming.",
}, []string{"kind"})

// ListingRequests counts player_api calls by action.
var ListingRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "xc_timeshift_player_api_requests_total",
	Help: "player_api.php requests by action.",
}, []string{"action"})

// IndexedStreams is the stream count from the last index run, per account.
var IndexedStreams = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "xc_timeshift_indexed_streams",
	Help: "Streams recorded by the last index run.",
}, []string{"account"})
