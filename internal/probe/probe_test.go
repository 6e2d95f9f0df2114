package probe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error {
	if p.err != nil {
		return p.err
	}
	return ctx.Err()
}

func TestAll(t *testing.T) {
	ok := Func(func(context.Context) error { return nil })
	bad := Func(func(context.Context) error { return errors.New("first") })
	worse := Func(func(context.Context) error { return errors.New("second") })

	if err := All(ok, nil, ok).Check(context.Background()); err != nil {
		t.Fatalf("all ok: %v", err)
	}
	if err := All(ok, bad, worse).Check(context.Background()); err == nil || err.Error() != "first" {
		t.Fatalf("err = %v, want first", err)
	}
	if err := All().Check(context.Background()); err != nil {
		t.Fatalf("empty: %v", err)
	}
}

func TestPing(t *testing.T) {
	if err := Ping("redis", pinger{}, time.Second).Check(context.Background()); err != nil {
		t.Fatalf("ping ok: %v", err)
	}
	err := Ping("redis", pinger{err: errors.New("connection refused")}, time.Second).Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "redis unreachable") {
		t.Fatalf("err = %v", err)
	}
}

func TestFresh(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	at := func(t time.Time, err error) func(context.Context) (time.Time, error) {
		return func(context.Context) (time.Time, error) { return t, err }
	}

	tests := []struct {
		name    string
		last    func(context.Context) (time.Time, error)
		maxAge  time.Duration
		wantErr bool
	}{
		{"recent", at(now.Add(-time.Minute), nil), 5 * time.Minute, false},
		{"stale", at(now.Add(-time.Hour), nil), 5 * time.Minute, true},
		{"no max age", at(now.Add(-time.Hour), nil), 0, false},
		{"never ran", at(time.Time{}, nil), time.Minute, true},
		{"lookup error", at(time.Time{}, errors.New("redis down")), time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Fresh(tt.last, tt.maxAge, clock).Check(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
	if err := Fresh(at(time.Time{}, nil), time.Minute, clock).Check(context.Background()); !errors.Is(err, ErrNoRun) {
		t.Fatalf("err = %v, want ErrNoRun", err)
	}
}

func TestShutdownGate(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("open gate: %v", err)
	}
	g.Set("")
	if err := p.Check(context.Background()); err == nil || err.Error() != "draining" {
		t.Fatalf("err = %v, want draining", err)
	}
	g.Set("shutting down")
	if err := p.Check(context.Background()); err == nil || err.Error() != "shutting down" {
		t.Fatalf("err = %v", err)
	}
	g.Clear()
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("cleared: %v", err)
	}
}
