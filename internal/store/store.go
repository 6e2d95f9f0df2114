// Package store keeps the most recent health-check reports so the HTTP API
// can serve them between runs.
package store

import (
	"context"
	"errors"

	"github.com/LumeWeb/portal-legacy/internal/health"
)

// ErrNotFound is returned by Latest before the first report is saved.
var ErrNotFound = errors.New("store: no report saved")

const DefaultHistory = 20

type Store interface {
	Save(ctx context.Context, rep health.Report) error
	Latest(ctx context.Context) (health.Report, error)
	// History returns up to n reports, newest first.
	History(ctx context.Context, n int) ([]health.Report, error)
	Ping(ctx context.Context) error
}
