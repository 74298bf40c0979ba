package fleet

import (
	"context"
	"fmt"
)

// RenderCommand asks a node to show Contents. Contents is opaque and is
// forwarded as is, including the empty string.
type RenderCommand struct {
	TargetNodeID string
	Contents     string
}

// Dispatcher forwards render commands to the fleet. It keeps no state and
// never touches connectivity.
type Dispatcher struct {
	session *Session
}

// NewDispatcher creates a dispatcher borrowing s.
func NewDispatcher(s *Session) *Dispatcher {
	return &Dispatcher{session: s}
}

// Render sends one command. Failures wrap ErrDispatchFailed and are not
// retried.
func (d *Dispatcher) Render(ctx context.Context, cmd RenderCommand) error {
	if cmd.TargetNodeID == "" {
		return fmt.Errorf("%w: %w", ErrDispatchFailed, ErrMissingTarget)
	}
	if err := d.session.RenderOnNode(ctx, cmd.TargetNodeID, cmd.Contents); err != nil {
		return fmt.Errorf("%w: node %s: %w", ErrDispatchFailed, cmd.TargetNodeID, err)
	}
	return nil
}
