// Package runner executes a probe registry and produces the run report.
//
// Every registered probe yields exactly one result: probes run concurrently
// and in isolation, panics become failed results, and the correlator pass
// runs only after all probes have finished. There are no retries and no
// global timeout; each probe bounds its own calls.
package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/LumeWeb/portal-legacy/internal/correlate"
	"github.com/LumeWeb/portal-legacy/internal/health"
	"github.com/LumeWeb/portal-legacy/internal/log"
	"github.com/LumeWeb/portal-legacy/internal/xerrors"
)

// Recorder receives per-probe and per-run outcomes, e.g. for metrics.
type Recorder interface {
	ObserveProbe(name string, up bool, elapsed time.Duration)
	ObserveRun(up bool, elapsed time.Duration)
}

type Options struct {
	Logger   log.Logger
	Recorder Recorder
	// MaxConcurrency caps simultaneously running probes; 0 means unlimited.
	MaxConcurrency int
	Tracer         trace.Tracer
}

type Runner struct {
	logger   log.Logger
	recorder Recorder
	limit    int
	tracer   trace.Tracer
}

func New(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("portal-legacy/runner")
	}
	return &Runner{
		logger:   opts.Logger,
		recorder: opts.Recorder,
		limit:    opts.MaxConcurrency,
		tracer:   opts.Tracer,
	}
}

// Run executes every probe in reg and returns results in registry order.
// The only error is a registry defect (wrapping ErrInvalidRegistry), in
// which case no probe runs.
func (r *Runner) Run(ctx context.Context, reg Registry) (health.Report, error) {
	if err := reg.Validate(); err != nil {
		return health.Report{}, xerrors.WithStack(err)
	}

	ctx, span := r.tracer.Start(ctx, "healthcheck.run",
		trace.WithAttributes(attribute.Int("probe.count", len(reg.Probes))))
	defer span.End()

	start := time.Now()
	results := make([]health.Result, len(reg.Probes))

	var g errgroup.Group
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}
	for i, p := range reg.Probes {
		g.Go(func() error {
			results[i] = r.runProbe(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	if n := correlate.Apply(results, reg.Pairs); n > 0 {
		r.logger.Warn(ctx, "endpoint mismatch between paired probes", "pairs", n)
	}

	rep := health.NewReport(start, time.Since(start), results)
	if r.recorder != nil {
		for _, res := range rep.Results {
			r.recorder.ObserveProbe(res.Name, res.Up, res.Elapsed)
		}
		r.recorder.ObserveRun(rep.Up, rep.Elapsed)
	}

	span.SetAttributes(
		attribute.String("run.id", rep.ID.String()),
		attribute.Bool("run.up", rep.Up),
	)
	if !rep.Up {
		span.SetStatus(codes.Error, "probes down")
	}
	r.logger.Info(ctx, "health check run complete",
		"run_id", rep.ID.String(),
		"up", rep.Up,
		"probes", len(rep.Results),
		"down", rep.Down(),
		"elapsed_ms", health.Milliseconds(rep.Elapsed),
	)
	return rep, nil
}

// runProbe runs one probe and normalizes its result.
func (r *Runner) runProbe(ctx context.Context, p health.Probe) (res health.Result) {
	name := p.Name()
	ctx, span := r.tracer.Start(ctx, "probe "+name,
		trace.WithAttributes(attribute.String("probe.name", name)))
	defer span.End()

	start := time.Now()
	defer func() {
		if v := recover(); v != nil {
			res = health.Result{
				Name:         name,
				ErrorMessage: fmt.Sprintf("probe panicked: %v", v),
				Elapsed:      time.Since(start),
			}
			r.logger.Error(ctx, xerrors.Newf("probe %s panicked: %v", name, v), "probe panicked",
				"probe", name, "panic_stack", string(debug.Stack()))
		}
		res = r.normalize(p, res, time.Since(start))

		span.SetAttributes(attribute.Bool("probe.up", res.Up))
		if res.StatusCode != nil {
			span.SetAttributes(attribute.Int("probe.status_code", *res.StatusCode))
		}
		if !res.Up {
			span.SetStatus(codes.Error, res.ErrorMessage)
		}
	}()

	return p.Check(ctx)
}

// normalize enforces the result contract on whatever the probe returned.
func (r *Runner) normalize(p health.Probe, res health.Result, measured time.Duration) health.Result {
	res.Name = p.Name()
	if !p.ReportsEndpointAddress() {
		res.IP = ""
	}
	if res.Elapsed <= 0 {
		res.Elapsed = measured
	}
	if !res.Up && !res.Valid() {
		res.ErrorMessage = "probe reported failure without detail"
	}
	return res
}
