// Package action defines the contract between workers and the user-supplied
// actions they execute, plus the built-in action kinds.
//
// An action is resolved by name through a [Registry]. Names registered in
// code ("noop") resolve directly; any other name is treated as the path of a
// YAML definition whose kind selects a factory (http, websocket, sleep).
package action

import (
	"context"
	"errors"
	"sync"

	"github.com/torosent/symphoner/internal/metrics"
)

var (
	ErrNotFound     = errors.New("action not found")
	ErrNotFile      = errors.New("action path is not a file")
	ErrLoad         = errors.New("action could not be loaded")
	ErrNotInvocable = errors.New("action is not invocable")
)

// Config is handed to every invocation.
type Config struct {
	Metrics  metrics.Sink
	Settings map[string]interface{}
}

// Action performs one unit of work against the system under test.
type Action interface {
	Invoke(ctx context.Context, cfg Config) *Result
}

// Result is the completion of one invocation. It resolves exactly once.
type Result struct {
	done chan struct{}
	once sync.Once
	err  error
}

func NewResult() *Result {
	return &Result{done: make(chan struct{})}
}

// Completed returns a Result that is already resolved with err.
func Completed(err error) *Result {
	r := NewResult()
	r.Resolve(err)
	return r
}

// Resolve settles the result. Later calls are ignored.
func (r *Result) Resolve(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

func (r *Result) Done() <-chan struct{} { return r.done }

// Wait blocks until the result resolves or ctx is done.
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Func adapts a synchronous function to Action.
type Func func(ctx context.Context, cfg Config) error

func (f Func) Invoke(ctx context.Context, cfg Config) *Result {
	return Completed(f(ctx, cfg))
}

// AsyncFunc adapts a function that completes later through resolve.
type AsyncFunc func(ctx context.Context, cfg Config, resolve func(error))

func (f AsyncFunc) Invoke(ctx context.Context, cfg Config) *Result {
	r := NewResult()
	f(ctx, cfg, r.Resolve)
	return r
}
