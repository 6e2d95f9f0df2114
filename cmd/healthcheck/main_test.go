package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/LumeWeb/portal-legacy/internal/health"
	"github.com/LumeWeb/portal-legacy/internal/log"
	"github.com/LumeWeb/portal-legacy/internal/monitor"
	"github.com/LumeWeb/portal-legacy/internal/runner"
	"github.com/LumeWeb/portal-legacy/internal/store"
)

type stubExecutor struct {
	rep health.Report
	err error
}

func (s stubExecutor) Run(context.Context, runner.Registry) (health.Report, error) {
	return s.rep, s.err
}

func newTestMonitor(t *testing.T, exec monitor.Executor) *monitor.Monitor {
	t.Helper()
	m, err := monitor.New(monitor.Options{
		Build:    func() (runner.Registry, error) { return runner.Registry{}, nil },
		Executor: exec,
		Store:    store.NewMemory(0),
	})
	if err != nil {
		t.Fatalf("monitor.New: %v", err)
	}
	return m
}

func TestRunOnce_ExitCodes(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name     string
		exec     stubExecutor
		wantCode int
		wantOut  int
	}{
		{
			name:     "all up",
			exec:     stubExecutor{rep: health.NewReport(now, time.Second, []health.Result{{Name: "skyd_config", Up: true}})},
			wantCode: exitOK,
			wantOut:  1,
		},
		{
			name: "one down",
			exec: stubExecutor{rep: health.NewReport(now, time.Second, []health.Result{
				{Name: "skyd_config", Up: true},
				{Name: "upload_file", ErrorMessage: "Response code 502 (Bad Gateway)"},
			})},
			wantCode: exitDown,
			wantOut:  2,
		},
		{
			name:     "fatal",
			exec:     stubExecutor{err: runner.ErrInvalidRegistry},
			wantCode: exitFatal,
			wantOut:  -1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			code := runOnce(context.Background(), log.Nop(), newTestMonitor(t, tt.exec), &out)
			if code != tt.wantCode {
				t.Fatalf("exit code = %d, want %d", code, tt.wantCode)
			}
			if tt.wantOut < 0 {
				if out.Len() != 0 {
					t.Fatalf("unexpected output %q", out.String())
				}
				return
			}
			var results []map[string]any
			if err := json.Unmarshal(out.Bytes(), &results); err != nil {
				t.Fatalf("output is not a JSON array: %v", err)
			}
			if len(results) != tt.wantOut {
				t.Fatalf("results = %d, want %d", len(results), tt.wantOut)
			}
		})
	}
}

func TestRealMain_FlagsAndConfig(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"version", []string{"-V"}, exitOK},
		{"version after command", []string{"run", "-V"}, exitOK},
		{"unknown flag", []string{"run", "-no-such-flag"}, exitFatal},
		{"missing portal domain", []string{"run", "-portal-domain="}, exitFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PORTAL_DOMAIN", "")
			if got := realMain(tt.args); got != tt.want {
				t.Fatalf("realMain(%v) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestNotifySystemd_NoSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	if err := notifySystemd(); err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want NOTIFY_SOCKET error", err)
	}
}
