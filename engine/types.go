// Package engine wires collectors, strategies and executors together through
// two broadcast buses and runs each of them as an independently supervised
// goroutine. It is generic over the event and action types, so the same core
// can drive any closed union the caller defines.
package engine

import "context"

// Collector is a source of events. EventStream opens the underlying source
// and returns a channel that yields events until the source ends or the
// context is cancelled. Opening may fail (e.g. the feed is unreachable);
// after a successful open the stream is expected to outlive transient
// failures on its own.
type Collector[E any] interface {
	Name() string
	EventStream(ctx context.Context) (<-chan E, error)
}

// Strategy consumes events and may produce actions. SyncState is called
// exactly once before the strategy is subscribed to the event bus; an error
// aborts engine startup. ProcessEvent is called once per delivered event and
// returns the action to publish together with true, or false for no action.
type Strategy[E, A any] interface {
	Name() string
	SyncState(ctx context.Context) error
	ProcessEvent(ctx context.Context, event E) (A, bool)
}

// Executor performs the side effect an action asks for. Execute is expected
// to tolerate partial failure internally (a submission to one of many
// endpoints failing is not an error of the whole action); returned errors
// are logged by the engine and do not stop the executor task.
type Executor[A any] interface {
	Name() string
	Execute(ctx context.Context, action A) error
}

// CollectorMap adapts a collector of one event type into a collector of
// another by lifting every native event through a pure, total function.
// The usual use is lifting a source-specific event into the union type the
// engine runs on.
type CollectorMap[I, E any] struct {
	inner Collector[I]
	lift  func(I) E
}

func NewCollectorMap[I, E any](inner Collector[I], lift func(I) E) *CollectorMap[I, E] {
	return &CollectorMap[I, E]{inner: inner, lift: lift}
}

func (c *CollectorMap[I, E]) Name() string { return c.inner.Name() }

func (c *CollectorMap[I, E]) EventStream(ctx context.Context) (<-chan E, error) {
	stream, err := c.inner.EventStream(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan E)
	go func() {
		defer close(out)
		for event := range stream {
			select {
			case out <- c.lift(event):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ExecutorMap adapts an executor of a payload type into an executor of the
// union action type. project extracts the payload the wrapped executor
// understands; returning false skips the action silently. This is how an
// executor built for a single action variant ignores all others.
type ExecutorMap[A, P any] struct {
	inner   Executor[P]
	project func(A) (P, bool)
}

func NewExecutorMap[A, P any](inner Executor[P], project func(A) (P, bool)) *ExecutorMap[A, P] {
	return &ExecutorMap[A, P]{inner: inner, project: project}
}

func (e *ExecutorMap[A, P]) Name() string { return e.inner.Name() }

func (e *ExecutorMap[A, P]) Execute(ctx context.Context, action A) error {
	payload, ok := e.project(action)
	if !ok {
		return nil
	}
	return e.inner.Execute(ctx, payload)
}
