// Package reporthttp serves health-check reports and the on-demand run
// trigger.
package reporthttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/LumeWeb/portal-legacy/internal/health"
	"github.com/LumeWeb/portal-legacy/internal/httpmw"
	"github.com/LumeWeb/portal-legacy/internal/log"
	"github.com/LumeWeb/portal-legacy/internal/ratelimit"
	"github.com/LumeWeb/portal-legacy/internal/store"
)

// ReportReader is the read side of the report store.
type ReportReader interface {
	Latest(ctx context.Context) (health.Report, error)
	History(ctx context.Context, n int) ([]health.Report, error)
}

// Trigger starts a run and waits for its report.
type Trigger interface {
	RunOnce(ctx context.Context) (health.Report, error)
}

// API implements the report endpoints.
type API struct {
	reports ReportReader
	trigger Trigger
	limiter *ratelimit.Limiter
	logger  log.Logger

	// maxHistory bounds ?limit= on the history endpoint
	maxHistory int
}

// NewAPI wires the handlers. trigger may be nil, in which case the run
// endpoint is not registered. limiter may be nil to leave it unthrottled.
func NewAPI(reports ReportReader, trigger Trigger, limiter *ratelimit.Limiter, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{
		reports: reports,
		trigger: trigger,
		limiter:    limiter,
		logger:     logger,
		maxHistory: store.DefaultHistory,
	}
}

// WithHistoryLimit sets the largest ?limit= the history endpoint accepts,
// normally the number of reports the store keeps.
func (api *API) WithHistoryLimit(n int) *API {
	if n > 0 {
		api.maxHistory = n
	}
	return api
}

// RegisterRoutes attaches the report endpoints to the router.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Route("/health-check", func(r chi.Router) {
		r.With(httpmw.Scope("results")).Get("/", api.HandleResults)
		r.With(httpmw.Scope("report")).Get("/report", api.HandleReport)
		r.With(httpmw.Scope("history")).Get("/history", api.HandleHistory)

		if api.trigger != nil {
			run := r.With(httpmw.Scope("run"))
			if api.limiter != nil {
				run = run.With(api.limiter.Middleware)
			}
			run.Post("/run", api.HandleRun)
		}
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleResults serves the results array of the latest report.
func (api *API) HandleResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rep, ok := api.latest(ctx, w)
	if !ok {
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, rep.Results)
}

// HandleReport serves the full latest report envelope.
func (api *API) HandleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rep, ok := api.latest(ctx, w)
	if !ok {
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, rep)
}

// HandleHistory serves up to ?limit= reports, newest first.
func (api *API) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n := api.maxHistory
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > api.maxHistory {
			api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{
				Error: "limit must be between 1 and " + strconv.Itoa(api.maxHistory),
			})
			return
		}
		n = v
	}

	reps, err := api.reports.History(ctx, n)
	if err != nil {
		log.FromContext(ctx).Error(ctx, err, "read report history")
		api.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "report store unavailable"})
		return
	}
	if reps == nil {
		reps = []health.Report{}
	}
	api.writeJSON(ctx, w, http.StatusOK, reps)
}

// HandleRun executes a run synchronously and answers with its report.
// A down portal is still a successful run, so the status is 200 either way.
func (api *API) HandleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	L := log.FromContext(ctx)

	start := time.Now()
	rep, err := api.trigger.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// client went away; the run carries on detached
			return
		}
		L.Error(ctx, err, "on-demand health-check run failed")
		api.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "health-check run failed"})
		return
	}

	L.Info(ctx, "on-demand health-check run",
		"run_id", rep.ID.String(),
		"up", rep.Up,
		"wait_ms", health.Milliseconds(time.Since(start)),
	)
	api.writeJSON(ctx, w, http.StatusOK, rep)
}

func (api *API) latest(ctx context.Context, w http.ResponseWriter) (health.Report, bool) {
	rep, err := api.reports.Latest(ctx)
	if errors.Is(err, store.ErrNotFound) {
		api.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Error: "no health-check report yet"})
		return health.Report{}, false
	}
	if err != nil {
		log.FromContext(ctx).Error(ctx, err, "read latest report")
		api.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "report store unavailable"})
		return health.Report{}, false
	}
	return rep, true
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
