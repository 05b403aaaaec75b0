// Package metrics defines the Prometheus metric types MPAT exports and
// convenience variables for the various stages of a transfer.
//
// When defining new operations or metrics, these are helpful values to
// track:
//   - things coming into or going out of the system: segments, frames,
//     sessions.
//   - the success or error status of any of the above.
//   - the distribution of processing latency.
package metrics

import (
	log "github.com/sirupsen/logrus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChannelLatencyHistogram tracks the measured round-trip latency of
	// a single send_and_await exchange, labeled by channel name.
	ChannelLatencyHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "mpat_channel_latency_seconds",
			Help: "Measured per-exchange round-trip latency, by channel.",
			Buckets: []float64{
				0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
				0.25, 0.5, 1, 2.5, 5, 10,
			},
		},
		[]string{"channel"})

	// ChannelThroughputHistogram tracks measured bytes/second for a
	// single exchange, labeled by channel name.
	ChannelThroughputHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mpat_channel_throughput_bytes_per_second",
			Help:    "Measured per-exchange throughput, by channel.",
			Buckets: prometheus.ExponentialBuckets(1000, 4, 10),
		},
		[]string{"channel"})

	// SelectorScoreGauge tracks the most recent score for each channel
	// (lower is better; +Inf means unmeasured).
	SelectorScoreGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mpat_selector_score",
			Help: "Current selector score per channel (latency / throughput).",
		},
		[]string{"channel"})

	// SegmentAttemptsCounter counts every send_and_await attempt for a
	// segment, labeled by channel and outcome (ack, nack, error).
	SegmentAttemptsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpat_segment_attempts_total",
			Help: "Number of segment send attempts, by channel and outcome.",
		},
		[]string{"channel", "outcome"})

	// SegmentRetryExhaustedCounter counts segments that ran out of
	// retransmission attempts without being acked.
	SegmentRetryExhaustedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mpat_segment_retry_exhausted_total",
			Help: "Number of segments that exhausted their retry budget.",
		})

	// SessionDurationHistogram tracks the wall-clock time from
	// send_data() invocation to FIN-acked (or abandonment).
	SessionDurationHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mpat_session_duration_seconds",
			Help:    "Sender-side session duration, from send_data to FIN.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
		})

	// RegistrySessionGauge tracks the number of sessions currently held
	// open in the receiver's session registry.
	RegistrySessionGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mpat_registry_sessions",
			Help: "Number of sessions currently open in the receiver registry.",
		})

	// FinalizeOutcomeCounter counts finalize() results by outcome
	// (success, missing_segments, decryption_failure, sink_error).
	FinalizeOutcomeCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpat_finalize_outcomes_total",
			Help: "Finalizer outcomes, by result.",
		},
		[]string{"outcome"})

	// KernelRTTHistogram tracks TCP_INFO-reported RTT (seconds) for
	// channel exchanges, where available (Linux only); see tcp.GetInfo.
	KernelRTTHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "mpat_channel_kernel_rtt_seconds",
			Help: "Kernel-reported TCP_INFO RTT per exchange, by channel.",
			Buckets: []float64{
				0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
			},
		},
		[]string{"channel"})
)

// init logs a line to let the user know that the package has been
// loaded and the metrics registered. The metrics are auto-registered
// as soon as this package is loaded, which can otherwise be opaque.
func init() {
	log.Info("Prometheus metrics in mpat.metrics are registered.")
}
