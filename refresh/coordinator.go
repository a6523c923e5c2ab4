package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNoRenewer is returned when a Coordinator has nothing to call.
var ErrNoRenewer = errors.New("refresh: renewer is nil")

const flightKey = "session"

// Renewer performs one session renewal.
type Renewer interface {
	Refresh(ctx context.Context) error
}

// RenewerFunc adapts a function to [Renewer].
type RenewerFunc func(ctx context.Context) error

// Refresh calls f.
func (f RenewerFunc) Refresh(ctx context.Context) error { return f(ctx) }

// Result describes one completed renewal.
type Result struct {
	Duration time.Duration
	Err      error
}

// Coordinator runs at most one renewal at a time.
type Coordinator struct {
	renewer  Renewer
	group    singleflight.Group
	inFlight atomic.Bool
	calls    atomic.Uint64
	observer func(Result)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithObserver registers fn to receive every completed renewal.
func WithObserver(fn func(Result)) Option {
	return func(c *Coordinator) { c.observer = fn }
}

// New returns a Coordinator around r.
func New(r Renewer, opts ...Option) *Coordinator {
	c := &Coordinator{renewer: r}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Do renews the session or joins the renewal already running.
//
// The shared renewal is detached from any single caller's cancellation, so
// one caller giving up does not fail the others. A caller whose ctx ends
// stops waiting and gets ctx.Err().
func (c *Coordinator) Do(ctx context.Context) error {
	if c == nil || c.renewer == nil {
		return ErrNoRenewer
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ch := c.group.DoChan(flightKey, func() (any, error) {
		c.inFlight.Store(true)
		c.calls.Add(1)
		start := time.Now()
		err := c.renewer.Refresh(context.WithoutCancel(ctx))
		c.inFlight.Store(false)
		if c.observer != nil {
			c.observer(Result{Duration: time.Since(start), Err: err})
		}
		return nil, err
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight reports whether a renewal is currently running.
func (c *Coordinator) InFlight() bool {
	return c.inFlight.Load()
}

// Calls returns how many renewals have actually been started.
func (c *Coordinator) Calls() uint64 {
	return c.calls.Load()
}
