package opshttp

import (
	"net/http"

	"github.com/LumeWeb/portal-legacy/internal/probe"
)

// probeHandler answers 200 with okBody when p passes (or is nil), 503 with
// the failure reason otherwise.
func probeHandler(p probe.Probe, okBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				http.Error(w, err.Error()+"\n", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(okBody + "\n"))
	}
}

// HealthzHandler is liveness: is the process able to answer.
func HealthzHandler(p probe.Probe) http.HandlerFunc { return probeHandler(p, "ok") }

// ReadyzHandler is readiness: store reachable, recent run, not draining.
func ReadyzHandler(p probe.Probe) http.HandlerFunc { return probeHandler(p, "ready") }
