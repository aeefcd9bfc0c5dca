package workflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records run and node outcomes.
type Metrics struct {
	runs         *prometheus.CounterVec
	nodes        *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nodeflow_workflow_runs_total",
			Help: "Workflow runs by final status.",
		}, []string{"status"}),
		nodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nodeflow_node_executions_total",
			Help: "Node executions by type and status.",
		}, []string{"type", "status"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nodeflow_node_duration_seconds",
			Help:    "Node execution latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
	}
	reg.MustRegister(m.runs, m.nodes, m.nodeDuration)
	return m
}

func (m *Metrics) observeRun(status ExecutionStatus) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) observeNode(t NodeType, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.nodes.WithLabelValues(string(t), status).Inc()
	m.nodeDuration.WithLabelValues(string(t)).Observe(elapsed.Seconds())
}
