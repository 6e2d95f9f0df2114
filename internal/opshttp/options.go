package opshttp

import (
	"net/http"

	"github.com/LumeWeb/portal-legacy/internal/probe"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      probe.Probe
	Readiness   probe.Probe
	// OnPanic is called after a handler panic is recovered, e.g. to count it.
	OnPanic func()
}
