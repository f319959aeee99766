package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ResolveRequests counts resolver outcomes. The "result" label is one of
// "shortcut", "cache_hit", "stream", "page" or "error".
var ResolveRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "csvtv_resolve_requests_total",
	Help: "URL resolution requests by outcome",
}, []string{"result"})

// ResolveProbes counts HTTP requests issued by the resolver per method.
var ResolveProbes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "csvtv_resolve_probes_total",
	Help: "HTTP probes issued while resolving URLs",
}, []string{"method"})

// SourceFetches counts channel list loads by scheme and outcome.
var SourceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "csvtv_source_fetches_total",
	Help: "Channel list fetches",
}, []string{"scheme", "result"})

// ChannelsLoaded is the size of the channel list currently presented.
var ChannelsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "csvtv_channels_loaded",
	Help: "Number of channels in the current list",
})

// PlaybackStates counts state transitions of the playback controller.
var PlaybackStates = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "csvtv_playback_state_transitions_total",
	Help: "Playback state transitions",
}, []string{"state"})

// PlaybackRetries counts scheduled playback retries.
var PlaybackRetries = promauto.NewCounter(prometheus.CounterOpts{
	Name: "csvtv_playback_retries_total",
	Help: "Playback retries scheduled after engine errors",
})
