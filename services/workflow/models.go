package workflow

import (
	"encoding/json"
	"time"
)

// NodeType is the closed set of node kinds the engine can execute.
type NodeType string

const (
	NodeTypeInitial           NodeType = "INITIAL"
	NodeTypeManualTrigger     NodeType = "MANUAL_TRIGGER"
	NodeTypeHTTPRequest       NodeType = "HTTP_REQUEST"
	NodeTypeGoogleFormTrigger NodeType = "GOOGLE_FORM_TRIGGER"
	NodeTypeStripeTrigger     NodeType = "STRIPE_TRIGGER"
)

// NodeTypes lists every NodeType in declaration order.
var NodeTypes = []NodeType{
	NodeTypeInitial,
	NodeTypeManualTrigger,
	NodeTypeHTTPRequest,
	NodeTypeGoogleFormTrigger,
	NodeTypeStripeTrigger,
}

// Valid reports whether t is one of the declared node types.
func (t NodeType) Valid() bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Workflow represents a persisted workflow definition with its graph of nodes and connections.
type Workflow struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Node represents a single trigger or action in a workflow graph.
type Node struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflowId,omitempty"`
	Type       NodeType       `json:"type"`
	Position   Position       `json:"position"`
	Data       map[string]any `json:"data"`
}

// Position holds x/y coordinates for rendering the node on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Connection is a directed dependency: FromNodeID executes before ToNodeID.
type Connection struct {
	ID         string `json:"id,omitempty"`
	FromNodeID string `json:"fromNodeId"`
	ToNodeID   string `json:"toNodeId"`
	FromOutput string `json:"fromOutput,omitempty"`
	ToInput    string `json:"toInput,omitempty"`
}

// ExecutionStatus is the lifecycle state of a workflow run.
type ExecutionStatus string

const (
	ExecutionRunning ExecutionStatus = "RUNNING"
	ExecutionSuccess ExecutionStatus = "SUCCESS"
	ExecutionFailed  ExecutionStatus = "FAILED"
)

// Execution is the persisted record of one workflow run.
type Execution struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflowId"`
	Status      ExecutionStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// ExecuteEventName is the job event that starts a workflow run.
const ExecuteEventName = "workflows/execute.workflow"

// ExecuteEvent is the payload of ExecuteEventName.
type ExecuteEvent struct {
	WorkflowID  string         `json:"workflowId"`
	InitialData map[string]any `json:"initialData,omitempty"`
}

// ExecuteRequest is the JSON body of a manual trigger.
type ExecuteRequest struct {
	InitialData map[string]any `json:"initialData"`
}

// ExecuteResponse acknowledges a queued run.
type ExecuteResponse struct {
	EventID    string `json:"eventId"`
	WorkflowID string `json:"workflowId"`
}

// Result is the output of a completed run: the trigger payload plus the
// accumulated context, tagged with the workflow it belongs to.
type Result struct {
	WorkflowID  string            `json:"workflowId"`
	ExecutionID string            `json:"executionId"`
	InitialData map[string]any    `json:"initialData"`
	Context     *Context          `json:"context"`
	Writers     map[string]string `json:"writers"`
}
