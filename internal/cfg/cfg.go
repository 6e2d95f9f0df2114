// Package cfg binds the service configuration to flags and environment
// variables and validates it.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/LumeWeb/portal-legacy/internal/log"
)

type App struct {
	LogJSON         bool
	LogLevel        string
	StacktraceLevel string
	HTTPPort        int
	AdminPort       int
	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	OTLPInsecure    bool
	OTLPHeaders     string
	TraceSample     float64

	// targets
	PortalDomain    string
	ServerDomain    string
	SkydAddr        string
	AccountsEnabled bool
	PortalModules   string
	BlockerHost     string
	BlockerPort     int

	// credentials
	AccountEmail    string
	AccountPassword string
	AuthSSMParam    string

	// runs
	ProbeTimeout   time.Duration
	MaxConcurrency int
	RunRateLimit   time.Duration
	RunBurst       int
	ReadyMaxAge    time.Duration

	// reports
	ReportS3Bucket      string
	ReportS3Prefix      string
	ReportSigningKeyARN string
	RedisURL            string
	ReportTTL           time.Duration
	ReportHistory       int
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or text (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 3100, "report API listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.BoolVar(&c.OTLPInsecure, "otlp-insecure", true, "use a plaintext connection to otlp-endpoint")
	fs.StringVar(&c.OTLPHeaders, "otlp-headers", "", "extra OTLP export headers (k1=v1,k2=v2)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.StringVar(&c.PortalDomain, "portal-domain", "", "public portal domain, e.g. siasky.net (required)")
	fs.StringVar(&c.ServerDomain, "server-domain", "", "direct domain of this portal server")
	fs.StringVar(&c.SkydAddr, "skyd-addr", "10.10.10.10:9980", "skyd API address (host:port)")
	fs.BoolVar(&c.AccountsEnabled, "accounts-enabled", false, "probe the accounts service")
	fs.StringVar(&c.PortalModules, "portal-modules", "", "enabled portal modules; \"b\" enables the blocker probe")
	fs.StringVar(&c.BlockerHost, "blocker-host", "10.10.10.110", "blocker service host")
	fs.IntVar(&c.BlockerPort, "blocker-port", 4000, "blocker service port")

	fs.StringVar(&c.AccountEmail, "account-email", "", "account used to obtain the skynet-jwt cookie")
	fs.StringVar(&c.AccountPassword, "account-password", "", "password for account-email")
	fs.StringVar(&c.AuthSSMParam, "auth-ssm-param", "", "ssm SecureString holding the skynet-jwt token (alternative to account login)")

	fs.DurationVar(&c.ProbeTimeout, "probe-timeout", 30*time.Second, "per-request timeout of probe HTTP calls")
	fs.IntVar(&c.MaxConcurrency, "max-concurrency", 0, "max probes running at once (0 = unlimited)")
	fs.DurationVar(&c.RunRateLimit, "run-rate-limit", time.Minute, "minimum interval between on-demand runs")
	fs.IntVar(&c.RunBurst, "run-burst", 1, "on-demand runs allowed back to back before run-rate-limit applies")
	fs.DurationVar(&c.ReadyMaxAge, "ready-max-age", 0, "report age after which readiness fails (0 = only require one run)")

	fs.StringVar(&c.ReportS3Bucket, "report-s3-bucket", "", "publish reports to this s3 bucket")
	fs.StringVar(&c.ReportS3Prefix, "report-s3-prefix", "health-check", "s3 key prefix for published reports")
	fs.StringVar(&c.ReportSigningKeyARN, "report-signing-key-arn", "", "KMS key ARN used to sign published reports")
	fs.StringVar(&c.RedisURL, "redis-url", "", "store reports in redis (redis://...) instead of memory")
	fs.DurationVar(&c.ReportTTL, "report-ttl", 24*time.Hour, "expiry of the latest report in redis (0 = none)")
	fs.IntVar(&c.ReportHistory, "report-history", 20, "number of past reports kept")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s", f.Name, f.Value.String(), key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
		}
	})
}

// EnvKey maps a flag name to its environment variable.
func EnvKey(prefix, flagName string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(flagName), "-", "_")
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, errors.New("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, errors.New("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Targets
	if c.PortalDomain == "" {
		errs = append(errs, errors.New("PORTAL_DOMAIN is required"))
	} else if strings.Contains(c.PortalDomain, "/") {
		errs = append(errs, fmt.Errorf("PORTAL_DOMAIN must be a bare domain (got %q)", c.PortalDomain))
	}
	if strings.Contains(c.ServerDomain, "/") {
		errs = append(errs, fmt.Errorf("SERVER_DOMAIN must be a bare domain (got %q)", c.ServerDomain))
	}
	if _, _, err := net.SplitHostPort(c.SkydAddr); err != nil {
		errs = append(errs, fmt.Errorf("SKYD_ADDR must be host:port (got %q): %v", c.SkydAddr, err))
	}
	if c.BlockerPort < 1 || c.BlockerPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid BLOCKER_PORT %d (must be 1..65535)", c.BlockerPort))
	}

	// Credentials
	if (c.AccountEmail == "") != (c.AccountPassword == "") {
		errs = append(errs, errors.New("ACCOUNT_EMAIL and ACCOUNT_PASSWORD must be set together"))
	}
	if c.AccountEmail != "" && c.AuthSSMParam != "" {
		errs = append(errs, errors.New("set either ACCOUNT_EMAIL or AUTH_SSM_PARAM, not both"))
	}

	// Runs
	if c.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("PROBE_TIMEOUT must be positive (got %s)", c.ProbeTimeout))
	}
	if c.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENCY must be >= 0 (got %d)", c.MaxConcurrency))
	}
	if c.RunRateLimit < 0 {
		errs = append(errs, fmt.Errorf("RUN_RATE_LIMIT must be >= 0 (got %s)", c.RunRateLimit))
	}
	if c.RunBurst < 1 {
		errs = append(errs, fmt.Errorf("RUN_BURST must be >= 1 (got %d)", c.RunBurst))
	}

	// Reports
	if c.ReportSigningKeyARN != "" && c.ReportS3Bucket == "" {
		errs = append(errs, errors.New("REPORT_SIGNING_KEY_ARN requires REPORT_S3_BUCKET"))
	}
	if c.RedisURL != "" {
		if u, err := url.Parse(c.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errs = append(errs, fmt.Errorf("REDIS_URL must be a redis:// or rediss:// URL (got %q)", c.RedisURL))
		}
	}
	if c.ReportTTL < 0 {
		errs = append(errs, fmt.Errorf("REPORT_TTL must be >= 0 (got %s)", c.ReportTTL))
	}
	if c.ReportHistory < 1 {
		errs = append(errs, fmt.Errorf("REPORT_HISTORY must be >= 1 (got %d)", c.ReportHistory))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
