package workflow

import (
	"context"

	"nodeflow/api/services/jobs"
	"nodeflow/api/services/realtime"
)

// Request is everything an executor receives for one node.
type Request struct {
	Node      Node
	Context   *Context
	Steps     jobs.StepRunner
	Publisher realtime.Publisher
}

// NodeExecutor runs a single node and returns the context for the next one.
// Implementations publish loading before their work and success or error after.
type NodeExecutor interface {
	Execute(ctx context.Context, req Request) (*Context, error)
}

// Registry holds one executor per node type. It is built once at startup.
type Registry struct {
	Initial           NodeExecutor
	ManualTrigger     NodeExecutor
	HTTPRequest       NodeExecutor
	GoogleFormTrigger NodeExecutor
	StripeTrigger     NodeExecutor
}

// NewRegistry creates a registry populated with all built-in executors.
func NewRegistry(httpClient HTTPDoer) *Registry {
	return &Registry{
		Initial:           NewPassThroughExecutor(NodeTypeInitial),
		ManualTrigger:     NewPassThroughExecutor(NodeTypeManualTrigger),
		HTTPRequest:       NewHTTPRequestExecutor(httpClient),
		GoogleFormTrigger: NewPassThroughExecutor(NodeTypeGoogleFormTrigger),
		StripeTrigger:     NewPassThroughExecutor(NodeTypeStripeTrigger),
	}
}

// Lookup returns the executor for t. Unknown or unset types fail with
// ErrUnknownNodeType.
func (r *Registry) Lookup(t NodeType) (NodeExecutor, error) {
	var exec NodeExecutor
	switch t {
	case NodeTypeInitial:
		exec = r.Initial
	case NodeTypeManualTrigger:
		exec = r.ManualTrigger
	case NodeTypeHTTPRequest:
		exec = r.HTTPRequest
	case NodeTypeGoogleFormTrigger:
		exec = r.GoogleFormTrigger
	case NodeTypeStripeTrigger:
		exec = r.StripeTrigger
	}
	if exec == nil {
		return nil, &Error{Kind: KindUnknownNodeType, Message: string(t), Err: ErrUnknownNodeType}
	}
	return exec, nil
}

// Channel is the realtime channel status events for t are published on.
func Channel(t NodeType) string {
	switch t {
	case NodeTypeInitial:
		return "initial-execution"
	case NodeTypeManualTrigger:
		return "manual-trigger-execution"
	case NodeTypeHTTPRequest:
		return "http-request-execution"
	case NodeTypeGoogleFormTrigger:
		return "google-form-trigger-execution"
	case NodeTypeStripeTrigger:
		return "stripe-trigger-execution"
	default:
		return "unknown-execution"
	}
}
