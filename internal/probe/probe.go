// Package probe holds the liveness and readiness checks of the service
// itself, served on the ops listener. They are unrelated to the portal
// probes in the health package.
package probe

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/LumeWeb/portal-legacy/internal/xerrors"
)

// Probe is evaluated at request time: nil is OK, non-nil fails with the
// error text as the reason.
type Probe interface{ Check(context.Context) error }

// Func adapts a function into a Probe.
type Func func(context.Context) error

func (f Func) Check(ctx context.Context) error { return f(ctx) }

// All passes only if every probe passes and returns the first failure.
// Nil probes are skipped.
func All(ps ...Probe) Func {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Pinger is a dependency that can be checked for connectivity, e.g. the
// report store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping fails when p cannot be reached within timeout.
func Ping(name string, p Pinger, timeout time.Duration) Func {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			return xerrors.Wrapf(err, "%s unreachable", name)
		}
		return nil
	}
}

// ErrNoRun is reported by Fresh before the first run completes.
var ErrNoRun = errors.New("no health-check run completed yet")

// Fresh fails when the last completed run is missing or older than maxAge.
// last returns the start time of the newest report.
func Fresh(last func(context.Context) (time.Time, error), maxAge time.Duration, now func() time.Time) Func {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) error {
		at, err := last(ctx)
		if err != nil {
			return err
		}
		if at.IsZero() {
			return ErrNoRun
		}
		if age := now().Sub(at); maxAge > 0 && age > maxAge {
			return xerrors.Newf("last run is stale: %s old (max %s)", age.Round(time.Second), maxAge)
		}
		return nil
	}
}

// ShutdownGate flips readiness to false during drain/shutdown.
type ShutdownGate struct {
	draining atomic.Bool
	reason   atomic.Value
}

func (g *ShutdownGate) Set(reason string) {
	g.reason.Store(reason)
	g.draining.Store(true)
}

func (g *ShutdownGate) Clear() {
	g.draining.Store(false)
	g.reason.Store("")
}

func (g *ShutdownGate) Probe() Func {
	return func(context.Context) error {
		if !g.draining.Load() {
			return nil
		}
		r, _ := g.reason.Load().(string)
		if r == "" {
			r = "draining"
		}
		return xerrors.New(r)
	}
}
