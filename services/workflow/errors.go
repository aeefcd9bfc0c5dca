package workflow

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a workflow error.
type ErrorKind string

const (
	KindConfiguration   ErrorKind = "configuration"
	KindTemplate        ErrorKind = "template"
	KindBodyValidation  ErrorKind = "body_validation"
	KindCycleDetected   ErrorKind = "cycle_detected"
	KindUnknownNodeType ErrorKind = "unknown_node_type"
	KindNotFound        ErrorKind = "not_found"
	KindTransient       ErrorKind = "transient"
)

var (
	ErrCycleDetected   = errors.New("workflow contains a cycle")
	ErrUnknownNodeType = errors.New("unknown node type")
	ErrNotFound        = errors.New("workflow not found")
)

// Error is a classified failure. Every kind except KindTransient tells the
// job runner not to retry.
type Error struct {
	Kind    ErrorKind
	NodeID  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.NodeID != "" {
		return fmt.Sprintf("%s error at node %s: %s", e.Kind, e.NodeID, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NonRetriable is read by the job runner.
func (e *Error) NonRetriable() bool { return e.Kind != KindTransient }

func configError(nodeID, message string) *Error {
	return &Error{Kind: KindConfiguration, NodeID: nodeID, Message: message}
}

func templateError(nodeID, field string, err error) *Error {
	return &Error{Kind: KindTemplate, NodeID: nodeID, Message: "failed to resolve " + field + " template", Err: err}
}

func bodyError(nodeID string, err error) *Error {
	return &Error{Kind: KindBodyValidation, NodeID: nodeID, Message: "request body is not valid JSON", Err: err}
}

func transientError(nodeID string, err error) *Error {
	return &Error{Kind: KindTransient, NodeID: nodeID, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
