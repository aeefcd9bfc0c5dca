package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nodeflow/api/services/jobs"
	"nodeflow/api/services/realtime"
)

// ExecutionStore records the lifecycle of runs.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, id, workflowID string) error
	CompleteExecution(ctx context.Context, id string, output json.RawMessage) error
	FailExecution(ctx context.Context, id, message string) error
}

// Engine runs workflows: it loads and orders a workflow's nodes, then folds
// the context through each node's executor, one node at a time.
type Engine struct {
	repo       WorkflowRepo
	executions ExecutionStore
	registry   *Registry
	publisher  realtime.Publisher
	metrics    *Metrics
}

// NewEngine creates an Engine. metrics may be nil.
func NewEngine(repo WorkflowRepo, executions ExecutionStore, registry *Registry, publisher realtime.Publisher, metrics *Metrics) *Engine {
	return &Engine{
		repo:       repo,
		executions: executions,
		registry:   registry,
		publisher:  publisher,
		metrics:    metrics,
	}
}

// Register binds the engine to ExecuteEventName on the job runner.
func (e *Engine) Register(r *jobs.Runner) {
	r.Register(ExecuteEventName, e.Execute, jobs.WithOnFailure(e.onFailure))
}

// Execute handles one attempt of a run. The event ID doubles as the
// execution ID. Errors are returned unchanged so the runner can tell
// retriable failures from fatal ones.
func (e *Engine) Execute(ctx context.Context, in jobs.Input) (any, error) {
	var ev ExecuteEvent
	if err := json.Unmarshal(in.Event.Data, &ev); err != nil {
		return nil, &Error{Kind: KindConfiguration, Message: "invalid event payload", Err: err}
	}
	if ev.WorkflowID == "" {
		return nil, configError("", "workflow id is missing")
	}

	executionID := in.Event.ID
	logger := slog.With("workflowId", ev.WorkflowID, "executionId", executionID)
	logger.Debug("Executing workflow", "attempt", in.Attempt+1)

	_, err := jobs.RunStep(ctx, in.Step, "create-execution", func(ctx context.Context) (bool, error) {
		if err := e.executions.CreateExecution(ctx, executionID, ev.WorkflowID); err != nil {
			return false, transientError("", err)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	sorted, err := jobs.RunStep(ctx, in.Step, "prepare-workflow", func(ctx context.Context) ([]Node, error) {
		wf, err := e.repo.LoadWorkflow(ctx, ev.WorkflowID)
		if err != nil {
			return nil, transientError("", fmt.Errorf("load workflow: %w", err))
		}
		if wf == nil {
			return nil, &Error{Kind: KindNotFound, Message: ev.WorkflowID, Err: ErrNotFound}
		}
		return TopologicalSort(wf.Nodes, wf.Connections)
	})
	if err != nil {
		logger.Error("Failed to prepare workflow", "error", err)
		return nil, err
	}

	wctx := NewContext(ev.InitialData)
	for _, node := range sorted {
		executor, err := e.registry.Lookup(node.Type)
		if err != nil {
			var werr *Error
			if errors.As(err, &werr) {
				werr.NodeID = node.ID
			}
			logger.Error("No executor for node", "nodeId", node.ID, "type", node.Type)
			return nil, err
		}

		start := time.Now()
		next, err := executor.Execute(ctx, Request{
			Node:      node,
			Context:   wctx,
			Steps:     in.Step,
			Publisher: e.publisher,
		})
		e.metrics.observeNode(node.Type, err, time.Since(start))
		if err != nil {
			logger.Error("Node execution failed", "nodeId", node.ID, "type", node.Type, "error", err)
			return nil, err
		}
		wctx = next
	}

	result := &Result{
		WorkflowID:  ev.WorkflowID,
		ExecutionID: executionID,
		InitialData: ev.InitialData,
		Context:     wctx,
		Writers:     wctx.Writers(),
	}
	output, err := json.Marshal(result)
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Message: "context is not JSON serialisable", Err: err}
	}

	_, err = jobs.RunStep(ctx, in.Step, "complete-execution", func(ctx context.Context) (bool, error) {
		if err := e.executions.CompleteExecution(ctx, executionID, output); err != nil {
			return false, transientError("", err)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.observeRun(ExecutionSuccess)
	logger.Info("Workflow execution completed", "nodes", len(sorted))
	return result, nil
}

func (e *Engine) onFailure(ctx context.Context, ev jobs.Event, err error) {
	e.metrics.observeRun(ExecutionFailed)
	if ferr := e.executions.FailExecution(ctx, ev.ID, err.Error()); ferr != nil {
		slog.Error("Failed to record failed execution", "executionId", ev.ID, "error", ferr)
	}
}
