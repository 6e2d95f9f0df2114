// Command healthcheck probes a Skynet portal.
//
//	healthcheck run   [flags]   run the battery once and print the results as JSON
//	healthcheck serve [flags]   serve the report API and ops endpoints (default)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/LumeWeb/portal-legacy/internal/auth"
	"github.com/LumeWeb/portal-legacy/internal/cfg"
	"github.com/LumeWeb/portal-legacy/internal/checks"
	"github.com/LumeWeb/portal-legacy/internal/cryptoutil"
	"github.com/LumeWeb/portal-legacy/internal/httpserver"
	"github.com/LumeWeb/portal-legacy/internal/log"
	"github.com/LumeWeb/portal-legacy/internal/metrics"
	"github.com/LumeWeb/portal-legacy/internal/monitor"
	"github.com/LumeWeb/portal-legacy/internal/opshttp"
	"github.com/LumeWeb/portal-legacy/internal/otelx"
	"github.com/LumeWeb/portal-legacy/internal/portal"
	"github.com/LumeWeb/portal-legacy/internal/probe"
	"github.com/LumeWeb/portal-legacy/internal/prof"
	"github.com/LumeWeb/portal-legacy/internal/publish"
	"github.com/LumeWeb/portal-legacy/internal/ratelimit"
	"github.com/LumeWeb/portal-legacy/internal/reporthttp"
	"github.com/LumeWeb/portal-legacy/internal/runner"
	"github.com/LumeWeb/portal-legacy/internal/store"
	v "github.com/LumeWeb/portal-legacy/internal/version"
)

const appName = "health-check"

// exit codes of the run command
const (
	exitOK    = 0
	exitFatal = 1
	exitDown  = 2
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := "serve"
	if len(args) > 0 && (args[0] == "run" || args[0] == "serve") {
		cmd, args = args[0], args[1:]
	}

	vi := v.Get()

	var conf cfg.App
	var showVersion bool
	fs := flag.NewFlagSet(appName+" "+cmd, flag.ContinueOnError)
	cfg.Register(fs, &conf)
	fs.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitFatal
	}

	if showVersion {
		fmt.Println(vi.String(appName))
		return exitOK
	}

	// PORTAL_DOMAIN, SERVER_DOMAIN, ... as set by the portal's docker env
	cfg.FillFromEnv(fs, "", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return exitFatal
	}

	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		stackLvl = lvl
	}
	lg, err := log.New(log.Options{
		App:             appName,
		Version:         vi.Version,
		Level:           lvl,
		StacktraceLevel: stackLvl,
		JSON:            conf.LogJSON,
		// stdout carries the report in run mode
		Writer: os.Stderr,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		return exitFatal
	}
	defer func() { _ = lg.Sync() }()
	L := lg.With("component", cmd)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"portal_domain", conf.PortalDomain,
		"server_domain", conf.ServerDomain,
		"accounts_enabled", conf.AccountsEnabled,
		"portal_modules", conf.PortalModules,
		"redis_store", conf.RedisURL != "",
		"report_s3_bucket", conf.ReportS3Bucket,
		"report_signing_key_arn", conf.ReportSigningKeyARN,
		"enable_tracing", conf.EnableTracing,
		"enable_pyroscope", conf.EnablePyroscope,
	)

	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  conf.OTLPInsecure,
		Headers:   otelx.ParseHeaders(conf.OTLPHeaders),
		Sample:    conf.TraceSample,
		Service:   appName,
		Component: cmd,
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(appName, cmd, vi)

	a, err := wire(ctx, L, conf, vi, m)
	if err != nil {
		L.Error(ctx, err, "failed to initialize")
		return exitFatal
	}
	defer a.close()

	if cmd == "run" {
		return runOnce(ctx, L, a.monitor, os.Stdout)
	}
	return serve(ctx, L, conf, vi, m, a)
}

type app struct {
	store   store.Store
	monitor *monitor.Monitor
	close   func()
}

// wire builds the probe battery and the report pipeline. AWS config is only
// loaded when a feature needs it so local runs work without credentials.
func wire(ctx context.Context, L log.Logger, conf cfg.App, vi v.Info, m *metrics.Metrics) (*app, error) {
	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var awsCfg *aws.Config
	needAWS := conf.AuthSSMParam != "" || conf.ReportS3Bucket != "" || conf.ReportSigningKeyARN != ""
	if needAWS {
		c, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		awsCfg = &c
	}

	client := portal.NewClient(portal.Options{
		Timeout:   conf.ProbeTimeout,
		UserAgent: vi.UserAgent(appName),
	})
	resolver := portal.NewResolver(conf.PortalDomain)

	var provider auth.Provider = auth.None
	switch {
	case conf.AuthSSMParam != "":
		provider = auth.NewSSM(ssm.NewFromConfig(*awsCfg), conf.AuthSSMParam)
		L.Info(ctx, "portal credential from ssm", "param", conf.AuthSSMParam)
	case conf.AccountEmail != "":
		provider = auth.NewLogin(client, conf.PortalDomain, conf.AccountEmail, conf.AccountPassword)
		L.Info(ctx, "portal credential from account login")
	default:
		L.Info(ctx, "no portal credential configured")
	}

	deps := checks.Deps{
		HTTP:     client,
		Uploader: client,
		Resolver: resolver,
		Registry: portal.NewRegistryClient(client, resolver.PortalURL()),
		Auth:     provider,
		Logger:   L,
		Targets: checks.Targets{
			PortalDomain: conf.PortalDomain,
			ServerDomain: conf.ServerDomain,
			SkydAddr:     conf.SkydAddr,
			BlockerHost:  conf.BlockerHost,
			BlockerPort:  conf.BlockerPort,
		},
	}
	flags := checks.FlagsFrom(conf.AccountsEnabled, conf.PortalModules)

	var st store.Store
	if conf.RedisURL != "" {
		rs, rc, err := store.DialRedis(conf.RedisURL, store.RedisOptions{TTL: conf.ReportTTL, History: conf.ReportHistory})
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = rc.Close() })
		st = rs
	} else {
		st = store.NewMemory(conf.ReportHistory)
	}

	var publisher monitor.Publisher
	if conf.ReportS3Bucket != "" {
		var signer publish.Signer
		if conf.ReportSigningKeyARN != "" {
			signer = cryptoutil.NewKMSSigner(kms.NewFromConfig(*awsCfg), conf.ReportSigningKeyARN)
		}
		p, err := publish.NewS3Publisher(s3.NewFromConfig(*awsCfg), publish.Options{
			Bucket: conf.ReportS3Bucket,
			Prefix: conf.ReportS3Prefix,
			Signer: signer,
			Logger: L,
		})
		if err != nil {
			closeAll()
			return nil, err
		}
		publisher = p
	}

	mon, err := monitor.New(monitor.Options{
		Logger: L,
		Build: func() (runner.Registry, error) {
			return checks.Registry(deps, flags)
		},
		Executor: runner.New(runner.Options{
			Logger:         L,
			Recorder:       m,
			MaxConcurrency: conf.MaxConcurrency,
		}),
		Store:     st,
		Publisher: publisher,
		Errors:    m,
	})
	if err != nil {
		closeAll()
		return nil, err
	}

	return &app{store: st, monitor: mon, close: closeAll}, nil
}

// runOnce executes the battery and writes the results array to out. The
// exit status is non-zero when any probe is down.
func runOnce(ctx context.Context, L log.Logger, mon *monitor.Monitor, out io.Writer) int {
	rep, err := mon.RunOnce(ctx)
	if err != nil {
		L.Error(ctx, err, "health-check run failed")
		return exitFatal
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep.Results); err != nil {
		L.Error(ctx, err, "write results")
		return exitFatal
	}
	if !rep.Up {
		return exitDown
	}
	return exitOK
}

// drainDelay gives load balancers time to see readiness fail before the
// listeners close.
const drainDelay = 10 * time.Second

func serve(ctx context.Context, L log.Logger, conf cfg.App, vi v.Info, m *metrics.Metrics, a *app) int {
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":           appName,
			"component":     "serve",
			"version":       vi.Version,
			"commit":        vi.Commit,
			"portal_domain": conf.PortalDomain,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	defer stopProf()

	var gate probe.ShutdownGate
	liveness := probe.Func(func(context.Context) error { return nil })
	readiness := probe.All(
		gate.Probe(),
		probe.Ping("report store", a.store, 2*time.Second),
		probe.Fresh(a.monitor.LastRun, conf.ReadyMaxAge, nil),
	)

	limiter := ratelimit.New(conf.RunRateLimit,
		ratelimit.WithBurst(conf.RunBurst),
		ratelimit.WithOnDenied(func(*http.Request) { m.IncRateLimited() }),
		ratelimit.WithOnFirstDenied(func(r *http.Request, retryAfter time.Duration) {
			L.Warn(r.Context(), "on-demand run rate limited", "retry_after", retryAfter.String())
		}),
	)
	api := reporthttp.NewAPI(a.store, a.monitor, limiter, L).WithHistoryLimit(conf.ReportHistory)

	httpStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		Health:       liveness,
		Readiness:    readiness,
		Routes:       api.RegisterRoutes,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start report http listener")
		return exitFatal
	}
	defer func() { _ = httpStop(context.Background()) }()

	// admin listener is for internal monitoring only
	opsStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      liveness,
		Readiness:   readiness,
		OnPanic:     m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return exitFatal
	}
	defer func() { _ = opsStop(context.Background()) }()

	// first report at startup; later runs are triggered over the API
	go func() {
		if _, err := a.monitor.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			L.Error(ctx, err, "startup health-check run failed")
		}
	}()

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	<-ctx.Done()
	L.Info(context.Background(), "shutdown signal received")

	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining", "delay", drainDelay.String())

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainDelay):
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "report http server shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}

	L.Info(context.Background(), "shutdown complete")
	return exitOK
}

func notifySystemd() error {
	// set by systemd for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return errors.New("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: dial: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return fmt.Errorf("systemd notify: write: %w", err)
	}
	return conn.Close()
}
