package reporthttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/LumeWeb/portal-legacy/internal/health"
	"github.com/LumeWeb/portal-legacy/internal/ratelimit"
	"github.com/LumeWeb/portal-legacy/internal/store"
)

type fakeTrigger struct {
	calls atomic.Int32
	rep   health.Report
	err   error
}

func (f *fakeTrigger) RunOnce(context.Context) (health.Report, error) {
	f.calls.Add(1)
	return f.rep, f.err
}

type brokenStore struct{}

func (brokenStore) Latest(context.Context) (health.Report, error) {
	return health.Report{}, errors.New("dial tcp: connection refused")
}

func (brokenStore) History(context.Context, int) ([]health.Report, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func sampleReport(startedAt time.Time) health.Report {
	return health.NewReport(startedAt, 2*time.Second, []health.Result{
		{Name: "skyd_config", Up: true},
		{Name: "upload_file", Up: false, ErrorMessage: "Response code 502 (Bad Gateway)"},
	})
}

func newRouter(api *API) http.Handler {
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func seededStore(t *testing.T, reps ...health.Report) *store.Memory {
	t.Helper()
	st := store.NewMemory(0)
	for _, rep := range reps {
		if err := st.Save(context.Background(), rep); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	return st
}

// GET /health-check

func TestHandleResults(t *testing.T) {
	rep := sampleReport(time.Now())
	h := newRouter(NewAPI(seededStore(t, rep), nil, nil, nil))

	for _, path := range []string{"/health-check", "/health-check/"} {
		rec := do(t, h, http.MethodGet, path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}

		var got []map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("%s: decode: %v", path, err)
		}
		if len(got) != 2 {
			t.Fatalf("%s: results = %d, want 2", path, len(got))
		}
		if got[0]["name"] != "skyd_config" || got[1]["up"] != false {
			t.Fatalf("%s: unexpected results %v", path, got)
		}
		if _, ok := got[0]["elapsedTime"]; !ok {
			t.Fatalf("%s: elapsedTime missing", path)
		}
	}
}

func TestHandleResults_NoReportYet(t *testing.T) {
	h := newRouter(NewAPI(store.NewMemory(0), nil, nil, nil))
	rec := do(t, h, http.MethodGet, "/health-check")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestHandleResults_StoreError(t *testing.T) {
	h := newRouter(NewAPI(brokenStore{}, nil, nil, nil))
	if rec := do(t, h, http.MethodGet, "/health-check"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

// GET /health-check/report

func TestHandleReport(t *testing.T) {
	rep := sampleReport(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	h := newRouter(NewAPI(seededStore(t, rep), nil, nil, nil))

	rec := do(t, h, http.MethodGet, "/health-check/report")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got health.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != rep.ID || got.Up || len(got.Results) != 2 {
		t.Fatalf("report = %+v", got)
	}
	if got.Elapsed != 2*time.Second {
		t.Fatalf("elapsed = %v", got.Elapsed)
	}
}

// GET /health-check/history

func TestHandleHistory(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	old, mid, newest := sampleReport(base), sampleReport(base.Add(time.Minute)), sampleReport(base.Add(2*time.Minute))
	h := newRouter(NewAPI(seededStore(t, old, mid, newest), nil, nil, nil))

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantIDs  []string
	}{
		{"default", "/health-check/history", http.StatusOK, []string{newest.ID.String(), mid.ID.String(), old.ID.String()}},
		{"limit", "/health-check/history?limit=2", http.StatusOK, []string{newest.ID.String(), mid.ID.String()}},
		{"zero", "/health-check/history?limit=0", http.StatusBadRequest, nil},
		{"too many", "/health-check/history?limit=1000", http.StatusBadRequest, nil},
		{"not a number", "/health-check/history?limit=abc", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.path)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantIDs == nil {
				return
			}
			var got []health.Report
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("reports = %d, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID.String() != id {
					t.Fatalf("report[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestHandleHistory_EmptyIsArray(t *testing.T) {
	h := newRouter(NewAPI(store.NewMemory(0), nil, nil, nil))
	rec := do(t, h, http.MethodGet, "/health-check/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Fatalf("body = %q, want empty array", body)
	}
}

// POST /health-check/run

func TestHandleRun(t *testing.T) {
	rep := sampleReport(time.Now())
	trig := &fakeTrigger{rep: rep}
	h := newRouter(NewAPI(store.NewMemory(0), trig, nil, nil))

	rec := do(t, h, http.MethodPost, "/health-check/run")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got health.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != rep.ID {
		t.Fatalf("run id = %s, want %s", got.ID, rep.ID)
	}
	if trig.calls.Load() != 1 {
		t.Fatalf("trigger calls = %d", trig.calls.Load())
	}
}

func TestHandleRun_Failure(t *testing.T) {
	trig := &fakeTrigger{err: errors.New("invalid probe registry")}
	h := newRouter(NewAPI(store.NewMemory(0), trig, nil, nil))

	if rec := do(t, h, http.MethodPost, "/health-check/run"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestHandleRun_RateLimited(t *testing.T) {
	trig := &fakeTrigger{rep: sampleReport(time.Now())}
	var denied int
	lim := ratelimit.New(time.Hour, ratelimit.WithOnDenied(func(*http.Request) { denied++ }))
	h := newRouter(NewAPI(store.NewMemory(0), trig, lim, nil))

	if rec := do(t, h, http.MethodPost, "/health-check/run"); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d", rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/health-check/run")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After missing")
	}
	if trig.calls.Load() != 1 {
		t.Fatalf("trigger ran %d times, want 1", trig.calls.Load())
	}
	if denied != 1 {
		t.Fatalf("denied hook calls = %d", denied)
	}
}

func TestHandleRun_LimiterDoesNotAffectReads(t *testing.T) {
	lim := ratelimit.New(time.Hour)
	h := newRouter(NewAPI(seededStore(t, sampleReport(time.Now())), &fakeTrigger{}, lim, nil))

	for i := 0; i < 5; i++ {
		if rec := do(t, h, http.MethodGet, "/health-check"); rec.Code != http.StatusOK {
			t.Fatalf("read %d status = %d", i, rec.Code)
		}
	}
}

func TestRegisterRoutes_NoTrigger(t *testing.T) {
	h := newRouter(NewAPI(store.NewMemory(0), nil, nil, nil))
	rec := do(t, h, http.MethodPost, "/health-check/run")
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 404 or 405", rec.Code)
	}
}

func TestRun_GetNotAllowed(t *testing.T) {
	h := newRouter(NewAPI(store.NewMemory(0), &fakeTrigger{}, nil, nil))
	if rec := do(t, h, http.MethodGet, "/health-check/run"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestHandleHistory_ConfiguredLimit(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	st := store.NewMemory(50)
	for i := 0; i < 30; i++ {
		if err := st.Save(context.Background(), sampleReport(base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	h := newRouter(NewAPI(st, nil, nil, nil).WithHistoryLimit(50))

	rec := do(t, h, http.MethodGet, "/health-check/history?limit=30")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got []health.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 30 {
		t.Fatalf("reports = %d, want 30", len(got))
	}

	if rec := do(t, h, http.MethodGet, "/health-check/history?limit=51"); rec.Code != http.StatusBadRequest {
		t.Fatalf("over limit status = %d, want 400", rec.Code)
	}
}
