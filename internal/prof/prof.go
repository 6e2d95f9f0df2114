// Package prof runs the Pyroscope continuous profiling agent.
package prof

import (
	"context"
	"fmt"
	"runtime"

	"github.com/grafana/pyroscope-go"

	"github.com/LumeWeb/portal-legacy/internal/log"
	"github.com/LumeWeb/portal-legacy/internal/xerrors"
)

type Options struct {
	Enabled           bool
	AppName           string
	ServerAddress     string
	BasicAuthUser     string
	BasicAuthPassword string
	TenantID          string
	// Tags are static labels on every profile, e.g. the portal domain.
	Tags                 map[string]string
	ProfileMutexFraction int
	BlockProfileRate     int
}

// agentLogger forwards pyroscope's printf-style logging to our logger.
type agentLogger struct {
	l log.Logger
}

func (a agentLogger) Infof(format string, args ...any) {
	a.l.Info(context.Background(), fmt.Sprintf(format, args...), "component", "pyroscope")
}

func (a agentLogger) Debugf(format string, args ...any) {
	a.l.Debug(context.Background(), fmt.Sprintf(format, args...), "component", "pyroscope")
}

func (a agentLogger) Errorf(format string, args ...any) {
	a.l.Error(context.Background(), xerrors.Newf(format, args...), "pyroscope agent error", "component", "pyroscope")
}

// Start starts the agent. The returned stop func is always callable, also
// when err is non-nil.
func Start(ctx context.Context, opts Options) (func(), error) {
	L := log.FromContext(ctx)

	if !opts.Enabled {
		L.Info(ctx, "pyroscope disabled")
		return func() {}, nil
	}

	if opts.ServerAddress == "" {
		err := xerrors.Newf("invalid server address (%q)", opts.ServerAddress)
		L.Error(ctx, err, "pyroscope options")
		return func() {}, err
	}

	if opts.ProfileMutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.ProfileMutexFraction)
	}
	if opts.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockProfileRate)
	}

	profiler, err := pyroscope.Start(config(opts, L))
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed",
			"server_address", opts.ServerAddress,
			"app_name", opts.AppName,
		)
		return func() {}, err
	}

	L.Info(ctx, "pyroscope started",
		"server_address", opts.ServerAddress,
		"app_name", opts.AppName,
	)

	return func() {
		_ = profiler.Stop()
		L.Info(context.Background(), "pyroscope stopped", "app_name", opts.AppName)
	}, nil
}

func config(opts Options, l log.Logger) pyroscope.Config {
	return pyroscope.Config{
		ApplicationName:   opts.AppName,
		ServerAddress:     opts.ServerAddress,
		BasicAuthUser:     opts.BasicAuthUser,
		BasicAuthPassword: opts.BasicAuthPassword,
		TenantID:          opts.TenantID,
		Tags:              opts.Tags,
		Logger:            agentLogger{l: l},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockCount,
			pyroscope.ProfileBlockDuration,
		},
	}
}
