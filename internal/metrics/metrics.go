package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "vitalsops_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	snapshotLoads   *prometheus.CounterVec
	snapshotLatency *prometheus.HistogramVec

	eventsReceived prometheus.Counter
	eventsMerged   *prometheus.CounterVec
	eventsDropped  *prometheus.CounterVec

	feedState      prometheus.Gauge
	feedReconnects prometheus.Counter
	feedResyncs    prometheus.Counter

	archiveWrites *prometheus.CounterVec
)

// Init registers the console metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		snapshotLoads = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "snapshot_loads_total",
				Help: "Snapshot loads by kind and result",
			},
			[]string{"kind", "result"},
		)
		snapshotLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "snapshot_latency_seconds",
				Help:    "Snapshot load latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)

		eventsReceived = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "push_events_received_total",
				Help: "Push events received from the transport",
			},
		)
		eventsMerged = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "push_events_merged_total",
				Help: "Push events merged into a view by view kind",
			},
			[]string{"view"},
		)
		eventsDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "push_events_dropped_total",
				Help: "Push events not merged by reason",
			},
			[]string{"reason"},
		)

		feedState = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "feed_state",
				Help: "Push feed state (0 disconnected, 1 connecting, 2 connected)",
			},
		)
		feedReconnects = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "feed_reconnects_total",
				Help: "Push feed reconnect attempts",
			},
		)
		feedResyncs = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "feed_resyncs_total",
				Help: "Resync signals sent to views after a feed gap",
			},
		)

		archiveWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "archive_writes_total",
				Help: "Archived readings by sink and result",
			},
			[]string{"sink", "result"},
		)

		prometheus.MustRegister(
			snapshotLoads,
			snapshotLatency,
			eventsReceived,
			eventsMerged,
			eventsDropped,
			feedState,
			feedReconnects,
			feedResyncs,
			archiveWrites,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}

// ObserveSnapshot records one snapshot load.
func ObserveSnapshot(kind string, duration time.Duration, err error) {
	if snapshotLoads != nil {
		snapshotLoads.WithLabelValues(kind, result(err)).Inc()
	}
	if snapshotLatency != nil {
		snapshotLatency.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// IncEventReceived counts a push event off the wire.
func IncEventReceived() {
	if eventsReceived != nil {
		eventsReceived.Inc()
	}
}

// IncEventMerged counts a push event applied to a view.
func IncEventMerged(view string) {
	if eventsMerged != nil {
		eventsMerged.WithLabelValues(view).Inc()
	}
}

// IncEventDropped counts a push event that was not applied.
func IncEventDropped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if eventsDropped != nil {
		eventsDropped.WithLabelValues(reason).Inc()
	}
}

// SetFeedState records the feed state machine position.
func SetFeedState(state int) {
	if feedState != nil {
		feedState.Set(float64(state))
	}
}

// IncReconnect counts a reconnect attempt.
func IncReconnect() {
	if feedReconnects != nil {
		feedReconnects.Inc()
	}
}

// IncResync counts a resync signal.
func IncResync() {
	if feedResyncs != nil {
		feedResyncs.Inc()
	}
}

// ObserveArchive records an archive write.
func ObserveArchive(sink string, err error) {
	if archiveWrites != nil {
		archiveWrites.WithLabelValues(sink, result(err)).Inc()
	}
}
