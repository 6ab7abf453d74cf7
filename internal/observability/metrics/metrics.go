// Package metrics exposes Prometheus instrumentation for the assistant.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "tbclinic"
	subsystem = "conversation"
)

// Turn outcomes recorded per processed message.
const (
	OutcomeGenerated  = "generated"
	OutcomeTask       = "task"
	OutcomeFallback   = "fallback"
	OutcomeOutOfScope = "out_of_scope"
	OutcomeError      = "error"
)

// ConversationMetrics instruments the dialogue engine. All methods are
// nil-safe so tests can pass a nil collector.
type ConversationMetrics struct {
	turns       *prometheus.CounterVec
	intents     *prometheus.CounterVec
	reschedules *prometheus.CounterVec
	latency     prometheus.Histogram
}

// NewConversationMetrics registers the collectors on reg. A nil registerer
// falls back to the default registry.
func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &ConversationMetrics{
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "turns_total",
			Help:      "Processed conversation turns by outcome.",
		}, []string{"outcome"}),
		intents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "intents_total",
			Help:      "Detected patient intents by action.",
		}, []string{"action"}),
		reschedules: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reschedules_total",
			Help:      "Reschedule flows by final result.",
		}, []string{"result"}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "turn_duration_seconds",
			Help:      "Wall time spent processing a turn.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

func (m *ConversationMetrics) ObserveTurn(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	m.latency.Observe(elapsed.Seconds())
}

func (m *ConversationMetrics) ObserveIntent(action string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(action).Inc()
}

// ObserveReschedule records the terminal state of a reschedule flow:
// "completed", "cancelled", or "failed".
func (m *ConversationMetrics) ObserveReschedule(result string) {
	if m == nil {
		return
	}
	m.reschedules.WithLabelValues(result).Inc()
}
