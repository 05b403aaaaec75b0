package channel

import (
	"math"
	"sync"
	"time"

	"github.com/mpat-go/mpat/metrics"
)

// epsilon keeps the score finite when a channel's measured throughput
// is zero (e.g. a zero-length exchange).
const epsilon = 1e-9

// measurement is a channel's most recent latency/throughput sample.
type measurement struct {
	latency    time.Duration
	throughput float64 // bytes/second
	measured   bool
}

func (m measurement) score() float64 {
	if !m.measured {
		return math.Inf(1)
	}
	return m.latency.Seconds() / (m.throughput + epsilon)
}

// Selector picks which registered channel should carry the next
// outbound segment, per spec.md §4.3: score(c) = latency / (throughput
// + epsilon), lowest score wins, ties and all-unmeasured channels
// break toward registration order.
type Selector struct {
	mu       sync.Mutex
	order    []string
	measured map[string]measurement
}

// NewSelector builds a Selector over the given channel names, in the
// order they should be used to break ties before any measurement
// exists.
func NewSelector(names []string) *Selector {
	s := &Selector{
		order:    append([]string(nil), names...),
		measured: make(map[string]measurement, len(names)),
	}
	for _, n := range names {
		s.measured[n] = measurement{}
		metrics.SelectorScoreGauge.WithLabelValues(n).Set(math.Inf(1))
	}
	return s
}

// Update records a fresh latency/throughput sample for a channel,
// following a successful send_and_await exchange. bytesLen is the
// size of the payload carried by that exchange.
func (s *Selector) Update(name string, latency time.Duration, bytesLen int) {
	var throughput float64
	if latency > 0 {
		throughput = float64(bytesLen) / latency.Seconds()
	}
	m := measurement{latency: latency, throughput: throughput, measured: true}

	s.mu.Lock()
	s.measured[name] = m
	s.mu.Unlock()

	metrics.ChannelThroughputHistogram.WithLabelValues(name).Observe(throughput)
	metrics.SelectorScoreGauge.WithLabelValues(name).Set(m.score())
}

// Choose returns the name of the channel with the lowest score. Ties
// (including the all-unmeasured case, where every score is +Inf) are
// broken by earliest registration order, per spec.md §4.3.
func (s *Selector) Choose() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := s.order[0]
	bestScore := s.measured[best].score()
	for _, name := range s.order[1:] {
		sc := s.measured[name].score()
		if sc < bestScore {
			best = name
			bestScore = sc
		}
	}
	return best
}

// Names returns the registered channel names in registration order.
func (s *Selector) Names() []string {
	return append([]string(nil), s.order...)
}
