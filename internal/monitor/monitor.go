// Package monitor ties one health-check run together: assemble the probe
// registry, execute it, then persist and publish the report. Storage and
// publishing failures are logged and counted but never change the report.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/LumeWeb/portal-legacy/internal/health"
	"github.com/LumeWeb/portal-legacy/internal/log"
	"github.com/LumeWeb/portal-legacy/internal/runner"
	"github.com/LumeWeb/portal-legacy/internal/store"
	"github.com/LumeWeb/portal-legacy/internal/xerrors"
)

// Executor runs an assembled registry. *runner.Runner satisfies it.
type Executor interface {
	Run(ctx context.Context, reg runner.Registry) (health.Report, error)
}

// Publisher ships a finished report somewhere durable and returns the
// object keys it wrote.
type Publisher interface {
	Publish(ctx context.Context, rep health.Report) ([]string, error)
}

// ErrorRecorder counts failures of the post-run stages ("store", "publish").
type ErrorRecorder interface {
	IncReportError(stage string)
}

type Options struct {
	Logger log.Logger
	// Build assembles the registry for a single run.
	Build    func() (runner.Registry, error)
	Executor Executor
	Store    store.Store
	// Publisher is optional.
	Publisher Publisher
	Errors    ErrorRecorder
	// PostRunTimeout bounds store and publish, which run detached from the
	// caller's context so a disconnecting client cannot drop a report.
	PostRunTimeout time.Duration
}

type Monitor struct {
	opts Options
	sf   singleflight.Group

	mu      sync.RWMutex
	lastRun time.Time
}

const defaultPostRunTimeout = 30 * time.Second

func New(opts Options) (*Monitor, error) {
	if opts.Build == nil {
		return nil, xerrors.New("monitor: registry builder is required")
	}
	if opts.Executor == nil {
		return nil, xerrors.New("monitor: executor is required")
	}
	if opts.Store == nil {
		return nil, xerrors.New("monitor: store is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.PostRunTimeout <= 0 {
		opts.PostRunTimeout = defaultPostRunTimeout
	}
	return &Monitor{opts: opts}, nil
}

// RunOnce executes a full run. Concurrent callers share the in-flight run
// and receive the same report.
func (m *Monitor) RunOnce(ctx context.Context) (health.Report, error) {
	ch := m.sf.DoChan("run", func() (any, error) {
		return m.run(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return health.Report{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return health.Report{}, res.Err
		}
		return res.Val.(health.Report), nil
	}
}

func (m *Monitor) run(ctx context.Context) (health.Report, error) {
	L := m.opts.Logger

	reg, err := m.opts.Build()
	if err != nil {
		return health.Report{}, xerrors.Wrap(err, "assemble probe registry")
	}

	rep, err := m.opts.Executor.Run(ctx, reg)
	if err != nil {
		return health.Report{}, xerrors.Wrap(err, "run probes")
	}

	m.mu.Lock()
	m.lastRun = rep.StartedAt
	m.mu.Unlock()

	L = L.With("run_id", rep.ID.String())
	if down := rep.Down(); len(down) > 0 {
		L.Warn(ctx, "health-check run finished with failures", "down", down, "elapsed_ms", health.Milliseconds(rep.Elapsed))
	} else {
		L.Info(ctx, "health-check run finished", "elapsed_ms", health.Milliseconds(rep.Elapsed))
	}

	pctx, cancel := context.WithTimeout(ctx, m.opts.PostRunTimeout)
	defer cancel()

	if err := m.opts.Store.Save(pctx, rep); err != nil {
		m.countError("store")
		L.Error(pctx, err, "save report")
	}

	if m.opts.Publisher != nil {
		if _, err := m.opts.Publisher.Publish(pctx, rep); err != nil {
			m.countError("publish")
			L.Error(pctx, err, "publish report")
		}
	}

	return rep, nil
}

func (m *Monitor) countError(stage string) {
	if m.opts.Errors != nil {
		m.opts.Errors.IncReportError(stage)
	}
}

// LastRun reports the start time of the newest report, falling back to the
// store when this process has not run yet. A missing report yields the
// zero time.
func (m *Monitor) LastRun(ctx context.Context) (time.Time, error) {
	m.mu.RLock()
	at := m.lastRun
	m.mu.RUnlock()
	if !at.IsZero() {
		return at, nil
	}

	rep, err := m.opts.Store.Latest(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return rep.StartedAt, nil
}
