package workflow

import (
	"context"
	"strings"

	"nodeflow/api/services/jobs"
	"nodeflow/api/services/realtime"
)

// PassThroughExecutor handles trigger nodes. Their payload is already in the
// context when the run starts, so the context is returned unchanged.
type PassThroughExecutor struct {
	channel  string
	stepName string
}

// NewPassThroughExecutor creates a no-op executor reporting on t's channel.
func NewPassThroughExecutor(t NodeType) *PassThroughExecutor {
	return &PassThroughExecutor{
		channel:  Channel(t),
		stepName: strings.TrimSuffix(Channel(t), "-execution"),
	}
}

func (e *PassThroughExecutor) Execute(ctx context.Context, req Request) (*Context, error) {
	realtime.Notify(ctx, req.Publisher, e.channel, req.Node.ID, realtime.StatusLoading)

	out, err := jobs.RunStep(ctx, req.Steps, e.stepName+":"+req.Node.ID, func(context.Context) (*Context, error) {
		return req.Context, nil
	})
	if err != nil {
		realtime.Notify(ctx, req.Publisher, e.channel, req.Node.ID, realtime.StatusError)
		return nil, err
	}

	realtime.Notify(ctx, req.Publisher, e.channel, req.Node.ID, realtime.StatusSuccess)
	return out, nil
}
