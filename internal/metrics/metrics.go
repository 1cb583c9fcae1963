// Package metrics collects Prometheus counters and gauges for the
// parts of the pipeline that are hardest to observe from logs alone:
// ring buffer underruns, track changes, scheduling failures and the
// metadata endpoint's request volume. This is purely additive
// observability, grounded on the metrics package ManuGH-xg2g ships
// alongside its own media pipeline (promauto-registered vars plus
// small Inc/Observe wrapper functions).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RingUnderrunsTotal counts Process calls that had to emit silence
	// because the ring buffer didn't have enough data yet.
	RingUnderrunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audioscheduler_ring_underruns_total",
		Help: "Number of playback periods served as silence due to ring buffer underrun",
	})

	// TrackChangesTotal counts completed transitions from one track to
	// the next, labeled by the zone that supplied it.
	TrackChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audioscheduler_track_changes_total",
		Help: "Number of tracks handed off to the decoder, by zone",
	}, []string{"zone"})

	// ScheduleFailuresTotal counts Scheduler.Next calls that returned
	// an error (both main and fallback playlists exhausted).
	ScheduleFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audioscheduler_schedule_failures_total",
		Help: "Number of scheduling attempts that produced no playable item, by zone",
	}, []string{"zone"})

	// MetaRequestsTotal counts requests served by the metadata
	// endpoint, labeled by HTTP status code.
	MetaRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audioscheduler_meta_requests_total",
		Help: "Number of requests served by the now-playing JSON endpoint",
	}, []string{"code"})

	// PlayerStateGauge mirrors the player's current lifecycle state as
	// a numeric gauge (see player.State's iota order), so it can be
	// graphed rather than parsed out of logs.
	PlayerStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audioscheduler_player_state",
		Help: "Current player state (0=Stopped,1=Resuming,2=Playing,3=Pausing,4=Paused,5=Stopping)",
	})

	// DecodeDuration tracks how long each decodeTrack call spent
	// streaming a file end to end, to catch ffmpeg slowing down.
	DecodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "audioscheduler_decode_duration_seconds",
		Help:    "Wall-clock time spent decoding a single track",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)

// IncRingUnderrun records one silence-filled playback period.
func IncRingUnderrun() {
	RingUnderrunsTotal.Inc()
}

// IncTrackChange records a track handed off to the decoder for zone.
func IncTrackChange(zone string) {
	TrackChangesTotal.WithLabelValues(zone).Inc()
}

// IncScheduleFailure records a zone that produced no playable item.
func IncScheduleFailure(zone string) {
	ScheduleFailuresTotal.WithLabelValues(zone).Inc()
}

// IncMetaRequest records one request served by the metadata endpoint.
func IncMetaRequest(code int) {
	MetaRequestsTotal.WithLabelValues(statusLabel(code)).Inc()
}

// SetPlayerState records the player's current lifecycle state.
func SetPlayerState(state int32) {
	PlayerStateGauge.Set(float64(state))
}

// ObserveDecodeDuration records how long a single track took to decode.
func ObserveDecodeDuration(d time.Duration) {
	DecodeDuration.Observe(d.Seconds())
}

func statusLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "other"
	}
}
