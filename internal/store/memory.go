package store

import (
	"context"
	"sync"

	"github.com/LumeWeb/portal-legacy/internal/health"
)

// Memory is a process-local Store. Reports are kept newest first and
// bounded by the configured history length.
type Memory struct {
	mu      sync.RWMutex
	reports []health.Report
	max     int
}

func NewMemory(history int) *Memory {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Memory{max: history}
}

func (m *Memory) Save(_ context.Context, rep health.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append([]health.Report{rep}, m.reports...)
	if len(m.reports) > m.max {
		m.reports = m.reports[:m.max]
	}
	return nil
}

func (m *Memory) Latest(_ context.Context) (health.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.reports) == 0 {
		return health.Report{}, ErrNotFound
	}
	return m.reports[0], nil
}

func (m *Memory) History(_ context.Context, n int) ([]health.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n <= 0 || n > len(m.reports) {
		n = len(m.reports)
	}
	out := make([]health.Report, n)
	copy(out, m.reports[:n])
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
