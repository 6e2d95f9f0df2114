package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LumeWeb/portal-legacy/internal/log"
	"github.com/LumeWeb/portal-legacy/internal/probe"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	Health       probe.Probe
	Readiness    probe.Probe
	// Routes mounts the report API onto the router.
	Routes func(chi.Router)
	// MaxBodyBytes defaults to 1KB; only the run trigger accepts a body.
	MaxBodyBytes int64
}
