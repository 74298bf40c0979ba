package fleet

import (
	"context"
	"sync/atomic"
)

// Session is the live handle to one account: a client plus the executor
// its calls run on. It is owned by one Integration and borrowed by that
// integration's monitors and dispatcher.
type Session struct {
	api      API
	exec     Runner
	released atomic.Bool
}

// OpenSession wraps api so that its calls run on exec.
func OpenSession(api API, exec Runner) *Session {
	return &Session{api: api, exec: exec}
}

// Release ends the session. It is safe to call more than once.
func (s *Session) Release() {
	s.released.Store(true)
}

// Released reports whether Release has been called.
func (s *Session) Released() bool {
	return s.released.Load()
}

// AccountInfo runs API.AccountInfo on the executor.
func (s *Session) AccountInfo(ctx context.Context) (*AccountRecord, error) {
	return call(ctx, s, s.api.AccountInfo)
}

// ListHubs runs API.ListHubs on the executor.
func (s *Session) ListHubs(ctx context.Context) ([]HubRecord, error) {
	return call(ctx, s, s.api.ListHubs)
}

// GetHub runs API.GetHub on the executor.
func (s *Session) GetHub(ctx context.Context, id string) (*HubRecord, error) {
	return call(ctx, s, func(ctx context.Context) (*HubRecord, error) {
		return s.api.GetHub(ctx, id)
	})
}

// ListNodes runs API.ListNodes on the executor.
func (s *Session) ListNodes(ctx context.Context) ([]NodeRecord, error) {
	return call(ctx, s, s.api.ListNodes)
}

// GetNode runs API.GetNode on the executor.
func (s *Session) GetNode(ctx context.Context, id string) (*NodeRecord, error) {
	return call(ctx, s, func(ctx context.Context) (*NodeRecord, error) {
		return s.api.GetNode(ctx, id)
	})
}

// RenderOnNode runs API.RenderOnNode on the executor.
func (s *Session) RenderOnNode(ctx context.Context, nodeID, contents string) error {
	_, err := call(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.api.RenderOnNode(ctx, nodeID, contents)
	})
	return err
}

// call runs fn on the session executor. Results that arrive after Release
// are dropped.
func call[T any](ctx context.Context, s *Session, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if s.Released() {
		return zero, ErrSessionReleased
	}

	var out T
	err := s.exec.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})

	if s.Released() {
		return zero, ErrSessionReleased
	}
	if err != nil {
		return zero, err
	}
	return out, nil
}
