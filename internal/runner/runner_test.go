package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LumeWeb/portal-legacy/internal/correlate"
	"github.com/LumeWeb/portal-legacy/internal/health"
)

// helpers

func upProbe(name, ip string) health.Probe {
	return health.NewProbe(name, func(context.Context) health.Result {
		return health.Result{Up: true, IP: ip, Elapsed: time.Millisecond}
	})
}

func downProbe(name string) health.Probe {
	return health.NewProbe(name, func(context.Context) health.Result {
		return health.Result{ErrorMessage: "refused"}
	})
}

type recorder struct {
	mu     sync.Mutex
	probes map[string]bool
	runs   int
	runUp  bool
}

func (r *recorder) ObserveProbe(name string, up bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.probes == nil {
		r.probes = map[string]bool{}
	}
	r.probes[name] = up
}

func (r *recorder) ObserveRun(up bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	r.runUp = up
}

// Run

func TestRun_OneResultPerProbeInOrder(t *testing.T) {
	reg := Registry{Probes: []health.Probe{
		upProbe("a", ""), downProbe("b"), upProbe("c", ""), downProbe("d"),
	}}
	rep, err := New(Options{}).Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Results) != len(reg.Probes) {
		t.Fatalf("results = %d, want %d", len(rep.Results), len(reg.Probes))
	}
	for i, name := range reg.Names() {
		if rep.Results[i].Name != name {
			t.Fatalf("result[%d] = %q, want %q", i, rep.Results[i].Name, name)
		}
	}
	if rep.Up {
		t.Fatal("report with down probes must not be up")
	}
}

func TestRun_ResultsSatisfyContract(t *testing.T) {
	reg := Registry{Probes: []health.Probe{
		upProbe("a", "1.1.1.1"),
		downProbe("b"),
		health.NewProbe("bare-failure", func(context.Context) health.Result { return health.Result{} }),
		health.NewProbe("negative", func(context.Context) health.Result { return health.Result{Up: true, Elapsed: -time.Second} }),
	}}
	rep, err := New(Options{}).Run(context.Background(), reg)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range rep.Results {
		if r.Elapsed < 0 {
			t.Fatalf("%s: negative elapsed %v", r.Name, r.Elapsed)
		}
		if !r.Valid() {
			t.Fatalf("%s: invalid result %+v", r.Name, r)
		}
	}
	if rep.Results[2].ErrorMessage == "" {
		t.Fatal("a bare failure should get a message")
	}
}

func TestRun_PanicIsIsolated(t *testing.T) {
	reg := Registry{Probes: []health.Probe{
		upProbe("before", ""),
		health.NewProbe("boom", func(context.Context) health.Result { panic("nil map") }),
		upProbe("after", ""),
	}}
	rep, err := New(Options{}).Run(context.Background(), reg)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Results) != 3 {
		t.Fatalf("results = %d", len(rep.Results))
	}
	boom := rep.Results[1]
	if boom.Name != "boom" || boom.Up || !strings.HasPrefix(boom.ErrorMessage, "probe panicked: nil map") {
		t.Fatalf("panic result = %+v", boom)
	}
	if !rep.Results[0].Up || !rep.Results[2].Up {
		t.Fatal("other probes must be unaffected")
	}
}

func TestRun_ClearsIPWhenNotReported(t *testing.T) {
	hidden := health.NewProbe("blocker", func(context.Context) health.Result {
		return health.Result{Up: true, IP: "10.0.0.9"}
	}, health.WithoutEndpointAddress())
	rep, err := New(Options{}).Run(context.Background(), Registry{Probes: []health.Probe{hidden, upProbe("website", "1.2.3.4")}})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Results[0].IP != "" {
		t.Fatalf("ip = %q, want empty", rep.Results[0].IP)
	}
	if rep.Results[1].IP != "1.2.3.4" {
		t.Fatalf("ip = %q, want kept", rep.Results[1].IP)
	}
}

func TestRun_AppliesPairs(t *testing.T) {
	reg := Registry{
		Probes: []health.Probe{upProbe("portal", "1.1.1.1"), upProbe("server", "2.2.2.2")},
		Pairs:  []correlate.Pair{{Primary: "portal", Secondary: "server", PrimaryLabel: "p", SecondaryLabel: "s"}},
	}
	rep, err := New(Options{}).Run(context.Background(), reg)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Results[0].Up {
		t.Fatal("primary must stay up")
	}
	s := rep.Results[1]
	if s.Up || len(s.Errors) != 1 || s.Errors[0].Message != correlate.MismatchMessage {
		t.Fatalf("secondary = %+v", s)
	}
}

func TestRun_ProbesRunConcurrently(t *testing.T) {
	const n = 4
	var started sync.WaitGroup
	started.Add(n)
	release := make(chan struct{})
	probes := make([]health.Probe, n)
	for i := range probes {
		probes[i] = health.NewProbe(fmt.Sprintf("p%d", i), func(context.Context) health.Result {
			started.Done()
			<-release
			return health.Result{Up: true}
		})
	}
	go func() {
		started.Wait()
		close(release)
	}()

	done := make(chan struct{})
	go func() {
		_, _ = New(Options{}).Run(context.Background(), Registry{Probes: probes})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("probes did not run concurrently")
	}
}

func TestRun_MaxConcurrency(t *testing.T) {
	var cur, peak atomic.Int32
	probes := make([]health.Probe, 8)
	for i := range probes {
		probes[i] = health.NewProbe(fmt.Sprintf("p%d", i), func(context.Context) health.Result {
			v := cur.Add(1)
			for {
				old := peak.Load()
				if v <= old || peak.CompareAndSwap(old, v) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			cur.Add(-1)
			return health.Result{Up: true}
		})
	}
	if _, err := New(Options{MaxConcurrency: 2}).Run(context.Background(), Registry{Probes: probes}); err != nil {
		t.Fatal(err)
	}
	if peak.Load() > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestRun_RecordsMetrics(t *testing.T) {
	rec := &recorder{}
	_, err := New(Options{Recorder: rec}).Run(context.Background(), Registry{Probes: []health.Probe{upProbe("a", ""), downProbe("b")}})
	if err != nil {
		t.Fatal(err)
	}
	if rec.runs != 1 || rec.runUp {
		t.Fatalf("runs = %d up = %v", rec.runs, rec.runUp)
	}
	if !rec.probes["a"] || rec.probes["b"] {
		t.Fatalf("probes = %v", rec.probes)
	}
}

func TestRun_EmptyRegistry(t *testing.T) {
	rep, err := New(Options{}).Run(context.Background(), Registry{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Results) != 0 || !rep.Up {
		t.Fatalf("report = %+v", rep)
	}
}

// Validate

func TestRun_InvalidRegistryIsFatal(t *testing.T) {
	var ran atomic.Bool
	spy := health.NewProbe("spy", func(context.Context) health.Result {
		ran.Store(true)
		return health.Result{Up: true}
	})
	cases := []struct {
		name string
		reg  Registry
	}{
		{"nil probe", Registry{Probes: []health.Probe{spy, nil}}},
		{"duplicate", Registry{Probes: []health.Probe{spy, upProbe("spy", "")}}},
		{"empty name", Registry{Probes: []health.Probe{spy, upProbe("", "")}}},
		{"unknown pair", Registry{Probes: []health.Probe{spy}, Pairs: []correlate.Pair{{Primary: "spy", Secondary: "ghost"}}}},
		{"self pair", Registry{Probes: []health.Probe{spy}, Pairs: []correlate.Pair{{Primary: "spy", Secondary: "spy"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rep, err := New(Options{}).Run(context.Background(), tc.reg)
			if !errors.Is(err, ErrInvalidRegistry) {
				t.Fatalf("err = %v, want ErrInvalidRegistry", err)
			}
			if len(rep.Results) != 0 {
				t.Fatal("no partial report on registry defect")
			}
		})
	}
	if ran.Load() {
		t.Fatal("no probe may run when the registry is invalid")
	}
}
