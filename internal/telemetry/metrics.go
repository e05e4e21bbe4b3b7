package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/adred-codev/busbox/internal/pubsub"
)

// BrokerMetrics implements pubsub.Metrics, counting dispatches per
// discipline (the msg-id is not used as a label) in a collector owned by
// this value, registered once and updated from the hot path.
type BrokerMetrics struct {
	dispatched *prometheus.CounterVec
}

// NewBrokerMetrics registers its collectors with reg (pass
// prometheus.DefaultRegisterer for the global registry).
func NewBrokerMetrics(reg prometheus.Registerer, brokerName string) *BrokerMetrics {
	m := &BrokerMetrics{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "bus",
			Subsystem:   "broker",
			Name:        "dispatched_total",
			Help:        "Messages delivered to a subscriber, by discipline.",
			ConstLabels: prometheus.Labels{"broker": brokerName},
		}, []string{"discipline"}),
	}
	reg.MustRegister(m.dispatched)
	return m
}

func (m *BrokerMetrics) ObserveDispatch(_ uint16, discipline pubsub.Discipline) {
	m.dispatched.WithLabelValues(discipline.String()).Inc()
}

// PoolMetrics tracks allocator-registry activity: allocations,
// exhaustion and blocks in use, labeled by allocator id. Releases are
// not counted.
type PoolMetrics struct {
	allocated *prometheus.CounterVec
	exhausted *prometheus.CounterVec
	inUse     *prometheus.GaugeVec
}

func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	m := &PoolMetrics{
		allocated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bus",
			Subsystem: "pool",
			Name:      "allocated_total",
			Help:      "Messages allocated, by allocator id.",
		}, []string{"allocator_id"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bus",
			Subsystem: "pool",
			Name:      "exhausted_total",
			Help:      "Allocation attempts that found the pool exhausted.",
		}, []string{"allocator_id"}),
		inUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bus",
			Subsystem: "pool",
			Name:      "blocks_in_use",
			Help:      "Blocks currently allocated, by allocator id.",
		}, []string{"allocator_id"}),
	}
	reg.MustRegister(m.allocated, m.exhausted, m.inUse)
	return m
}

func (m *PoolMetrics) ObserveAllocated(allocatorID string) { m.allocated.WithLabelValues(allocatorID).Inc() }
func (m *PoolMetrics) ObserveExhausted(allocatorID string) { m.exhausted.WithLabelValues(allocatorID).Inc() }
func (m *PoolMetrics) SetInUse(allocatorID string, n float64) {
	m.inUse.WithLabelValues(allocatorID).Set(n)
}

// HSMMetrics counts state transitions, labeled by engine name.
type HSMMetrics struct {
	transitions *prometheus.CounterVec
}

func NewHSMMetrics(reg prometheus.Registerer) *HSMMetrics {
	m := &HSMMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bus",
			Subsystem: "hsm",
			Name:      "transitions_total",
			Help:      "HSM state transitions, by engine.",
		}, []string{"engine", "to_state"}),
	}
	reg.MustRegister(m.transitions)
	return m
}

func (m *HSMMetrics) ObserveTransition(engine, toState string) {
	m.transitions.WithLabelValues(engine, toState).Inc()
}
