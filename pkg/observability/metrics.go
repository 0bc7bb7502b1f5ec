package observability

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/chatflow/pkg/domain"
)

const namespace = "chatflow"

// Metrics records flow execution metrics. It implements flow.Observer.
type Metrics struct {
	gatherer prometheus.Gatherer

	nodeVisits       *prometheus.CounterVec
	pauses           *prometheus.CounterVec
	runsFinished     prometheus.Counter
	codeDuration     *prometheus.HistogramVec
	sessionsStarted  *prometheus.CounterVec
	sessionsFinished *prometheus.CounterVec
	inputRejected    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg uses a fresh registry, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{
		gatherer: gatherer,
		nodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_visits_total",
			Help:      "Total number of node visits by node type.",
		}, []string{"node_type"}),
		pauses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pauses_total",
			Help:      "Runs that stopped waiting for user input, by node type.",
		}, []string{"node_type"}),
		runsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Runs that reached a terminal node.",
		}),
		codeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "code_duration_seconds",
			Help:      "Duration of code node executions.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"success"}),
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sessions started per bot.",
		}, []string{"bot_id"}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Sessions that finished after a response, per bot.",
		}, []string{"bot_id"}),
		inputRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "input_rejected_total",
			Help:      "Responses rejected by the waiting node.",
		}, []string{"node_type", "reason"}),
	}

	for _, c := range []prometheus.Collector{
		m.nodeVisits, m.pauses, m.runsFinished, m.codeDuration,
		m.sessionsStarted, m.sessionsFinished, m.inputRejected,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns engine hooks feeding the metrics.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeVisits.WithLabelValues(string(e.NodeType)).Inc()
		},
		OnPause: func(_ context.Context, e *domain.NodeEvent) {
			m.pauses.WithLabelValues(string(e.NodeType)).Inc()
		},
		OnFinish: func(context.Context, *domain.NodeEvent) {
			m.runsFinished.Inc()
		},
		OnCodeExecuted: func(_ context.Context, e *domain.CodeEvent) {
			label := "false"
			if e.Success {
				label = "true"
			}
			m.codeDuration.WithLabelValues(label).Observe(e.Duration.Seconds())
		},
	}
}

func (m *Metrics) SessionStarted(botID string) {
	m.sessionsStarted.WithLabelValues(botID).Inc()
}

func (m *Metrics) SessionFinished(botID string) {
	m.sessionsFinished.WithLabelValues(botID).Inc()
}

func (m *Metrics) InputRejected(botID string, nodeType domain.NodeType, err error) {
	reason := "other"
	switch {
	case errors.Is(err, domain.ErrInputRequired):
		reason = "input_required"
	case errors.Is(err, domain.ErrInvalidBranchOption):
		reason = "invalid_option"
	}
	m.inputRejected.WithLabelValues(string(nodeType), reason).Inc()
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
