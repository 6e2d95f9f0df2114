package httpserver

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/LumeWeb/portal-legacy/internal/log"
)

type stubProbe struct{ err error }

func (p *stubProbe) Check(context.Context) error { return p.err }

func defaultOpts() Options {
	return Options{
		Logger:       log.Nop(),
		UseRecoverMW: true,
	}
}

func doRequest(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func getFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

// Middleware

func TestNewHandler_SecurityHeadersOn404(t *testing.T) {
	opts := defaultOpts()
	rec := doRequest(t, NewHandler(&opts), http.MethodGet, "/nope")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing on 404")
	}
}

func TestNewHandler_RequestID(t *testing.T) {
	opts := defaultOpts()
	h := NewHandler(&opts)

	a := doRequest(t, h, http.MethodGet, "/").Header().Get("X-Request-Id")
	b := doRequest(t, h, http.MethodGet, "/").Header().Get("X-Request-Id")
	if a == "" || b == "" || a == b {
		t.Fatalf("request ids = %q, %q; want distinct non-empty", a, b)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "fixed")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "fixed" {
		t.Fatalf("propagated id = %q", got)
	}
}

func TestNewHandler_Routes(t *testing.T) {
	opts := defaultOpts()
	opts.Routes = func(r chi.Router) {
		r.Get("/health-check", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("[]"))
		})
	}
	rec := doRequest(t, NewHandler(&opts), http.MethodGet, "/health-check")

	if rec.Code != http.StatusOK || rec.Body.String() != "[]" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestNewHandler_HealthAndReady(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		opts  func(*Options)
		wantC int
	}{
		{"healthy", "/-/healthy", func(o *Options) { o.Health = &stubProbe{} }, http.StatusOK},
		{"unhealthy", "/-/healthy", func(o *Options) { o.Health = &stubProbe{err: errors.New("down")} }, http.StatusServiceUnavailable},
		{"ready", "/-/ready", func(o *Options) { o.Readiness = &stubProbe{} }, http.StatusOK},
		{"not ready", "/-/ready", func(o *Options) { o.Readiness = &stubProbe{err: errors.New("draining")} }, http.StatusServiceUnavailable},
		{"no probe", "/-/ready", func(o *Options) {}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOpts()
			tt.opts(&opts)
			if rec := doRequest(t, NewHandler(&opts), http.MethodGet, tt.path); rec.Code != tt.wantC {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantC)
			}
		})
	}
}

func TestNewHandler_MetricsMW_Applied(t *testing.T) {
	var called bool
	opts := defaultOpts()
	opts.MetricsMW = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			next.ServeHTTP(w, r)
		})
	}
	doRequest(t, NewHandler(&opts), http.MethodGet, "/")
	if !called {
		t.Fatal("metrics middleware not called")
	}
}

func TestNewHandler_RecoverMW(t *testing.T) {
	var panics int
	opts := defaultOpts()
	opts.OnPanic = func() { panics++ }
	opts.Routes = func(r chi.Router) {
		r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
	}
	rec := doRequest(t, NewHandler(&opts), http.MethodGet, "/boom")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if panics != 1 {
		t.Fatalf("OnPanic calls = %d", panics)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("security headers must survive a panic")
	}
}

func TestNewHandler_MaxBody(t *testing.T) {
	opts := defaultOpts()
	opts.MaxBodyBytes = 8
	opts.Routes = func(r chi.Router) {
		r.Post("/echo", func(w http.ResponseWriter, r *http.Request) {
			if _, err := io.ReadAll(r.Body); err != nil {
				http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			}
		})
	}
	rec := httptest.NewRecorder()
	NewHandler(&opts).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("a", 64))))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestNewHandler_CompressesJSON(t *testing.T) {
	body := `[` + strings.Repeat(`{"name":"skyd_config","up":true},`, 100) + `{}]`
	opts := defaultOpts()
	opts.Routes = func(r chi.Router) {
		r.Get("/health-check", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/health-check", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	NewHandler(&opts).ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q", rec.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	got, _ := io.ReadAll(zr)
	if string(got) != body {
		t.Fatal("decompressed body mismatch")
	}
}

func TestNewHandler_NilLogger(t *testing.T) {
	h := NewHandler(&Options{})
	if rec := doRequest(t, h, http.MethodGet, "/"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

// Server

func TestNewServer_Configuration(t *testing.T) {
	h := http.NewServeMux()
	srv := NewServer(":1234", h)

	if srv.Addr != ":1234" || srv.Handler != h {
		t.Fatalf("addr/handler not set: %q", srv.Addr)
	}
	if srv.ReadHeaderTimeout != DefaultReadHeaderTimeout ||
		srv.ReadTimeout != DefaultReadTimeout ||
		srv.WriteTimeout != DefaultWriteTimeout ||
		srv.IdleTimeout != DefaultIdleTimeout ||
		srv.MaxHeaderBytes != DefaultMaxHeaderBytes {
		t.Fatalf("timeouts not applied: %+v", srv)
	}
}

func TestStart_ServesAndStops(t *testing.T) {
	port := getFreePort(t)
	opts := defaultOpts()
	opts.Port = port
	opts.Health = &stubProbe{}

	stop, err := Start(context.Background(), &opts)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/-/healthy", port)
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	if err := stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// idempotent
	if err := stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestStart_PortConflict(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	opts := defaultOpts()
	opts.Port = ln.Addr().(*net.TCPAddr).Port
	if _, err := Start(context.Background(), &opts); err == nil {
		t.Fatal("expected error on port in use")
	}
}
