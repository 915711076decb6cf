package groupchat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks orchestration activity. A nil *Metrics is a valid
// no-op receiver so tests and subordinate groups can skip registration.
type Metrics struct {
	rounds       *prometheus.CounterVec
	compressions *prometheus.CounterVec
	delegations  *prometheus.CounterVec
	episodes     *prometheus.CounterVec
}

// NewMetrics registers the orchestration counters with reg
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		rounds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chaos",
			Subsystem: "groupchat",
			Name:      "rounds_total",
			Help:      "Messages appended to group transcripts.",
		}, []string{"group"}),
		compressions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chaos",
			Subsystem: "groupchat",
			Name:      "compressions_total",
			Help:      "Transcript compression passes by outcome.",
		}, []string{"outcome"}),
		delegations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chaos",
			Subsystem: "groupchat",
			Name:      "delegations_total",
			Help:      "Nested delegations by outcome.",
		}, []string{"outcome"}),
		episodes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chaos",
			Subsystem: "groupchat",
			Name:      "episodes_total",
			Help:      "Finished episodes by terminal status.",
		}, []string{"status"}),
	}
}

func (m *Metrics) incRound(group string) {
	if m != nil {
		m.rounds.WithLabelValues(group).Inc()
	}
}

func (m *Metrics) observeCompression(degraded bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if degraded {
		outcome = "degraded"
	}
	m.compressions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeDelegation(stalled bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if stalled {
		outcome = "stalled"
	}
	m.delegations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeEpisode(status EpisodeStatus) {
	if m != nil {
		m.episodes.WithLabelValues(string(status)).Inc()
	}
}
