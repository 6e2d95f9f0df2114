package health

import (
	"context"
	"time"
)

// Probe is one independent check. Check must return a fully populated Result
// and must not panic; failures are recorded on the result.
type Probe interface {
	Name() string
	// ReportsEndpointAddress is false for probes whose IP must never appear in
	// the report. The runner clears Result.IP for them.
	ReportsEndpointAddress() bool
	Check(ctx context.Context) Result
}

// ProbeFunc is the body of a probe built with NewProbe.
type ProbeFunc func(ctx context.Context) Result

type funcProbe struct {
	name      string
	fn        ProbeFunc
	reportsIP bool
}

// Option configures a probe built with NewProbe.
type Option func(*funcProbe)

// WithoutEndpointAddress marks the probe as never reporting an IP.
func WithoutEndpointAddress() Option {
	return func(p *funcProbe) { p.reportsIP = false }
}

// NewProbe adapts fn into a Probe. The returned result is always stamped with
// name.
func NewProbe(name string, fn ProbeFunc, opts ...Option) Probe {
	p := &funcProbe{name: name, fn: fn, reportsIP: true}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *funcProbe) Name() string                 { return p.name }
func (p *funcProbe) ReportsEndpointAddress() bool { return p.reportsIP }

func (p *funcProbe) Check(ctx context.Context) Result {
	r := p.fn(ctx)
	r.Name = p.name
	return r
}

// Timer measures a probe's elapsed time.
type Timer struct {
	start time.Time
}

func StartTimer() Timer { return Timer{start: time.Now()} }

// Stop stamps r with the elapsed time and returns it.
func (t Timer) Stop(r Result) Result {
	r.Elapsed = time.Since(t.start)
	if r.Elapsed < 0 {
		r.Elapsed = 0
	}
	return r
}

// Elapsed is the time since the timer started.
func (t Timer) Elapsed() time.Duration { return time.Since(t.start) }
