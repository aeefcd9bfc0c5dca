package workflow

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodeflow/api/services/jobs"
)

// counterValue sums the counter samples of family name whose labels match.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			got := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue metrics
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.observeRun(ExecutionSuccess)
	m.observeNode(NodeTypeInitial, nil, time.Millisecond)
}

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.observeNode(NodeTypeHTTPRequest, nil, 10*time.Millisecond)
	m.observeNode(NodeTypeHTTPRequest, errors.New("boom"), time.Millisecond)
	m.observeRun(ExecutionFailed)

	assert.Equal(t, 1.0, counterValue(t, reg, "nodeflow_node_executions_total", map[string]string{"type": "HTTP_REQUEST", "status": "success"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "nodeflow_node_executions_total", map[string]string{"type": "HTTP_REQUEST", "status": "error"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "nodeflow_workflow_runs_total", map[string]string{"status": "FAILED"}))
}

func TestEngine_RecordsMetrics(t *testing.T) {
	wf := &Workflow{
		ID:    "wf-metrics",
		Nodes: []Node{{ID: "t", Type: NodeTypeManualTrigger}, {ID: "s", Type: NodeTypeStripeTrigger}},
	}
	store := newMemStore(wf)
	reg := prometheus.NewRegistry()
	engine := NewEngine(store, store, NewRegistry(http.DefaultClient), nil, NewMetrics(reg))

	_, err := engine.Execute(context.Background(), jobs.Input{Event: executeEvent(t, "wf-metrics", nil), Step: jobs.NewMemoSteps()})
	require.NoError(t, err)

	assert.Equal(t, 2.0, counterValue(t, reg, "nodeflow_node_executions_total", map[string]string{"status": "success"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "nodeflow_workflow_runs_total", map[string]string{"status": "SUCCESS"}))
}
