package runner

import (
	"errors"
	"fmt"

	"github.com/LumeWeb/portal-legacy/internal/correlate"
	"github.com/LumeWeb/portal-legacy/internal/health"
)

// ErrInvalidRegistry wraps every registry assembly defect. It is the only
// error Run returns.
var ErrInvalidRegistry = errors.New("invalid probe registry")

// Registry is the ordered set of probes for one run plus the result pairs
// the correlator compares after all probes finish.
type Registry struct {
	Probes []health.Probe

	// Pairs are for legs registered as separate probes. A probe that runs
	// both legs itself correlates them before returning.
	Pairs []correlate.Pair
}

// Validate rejects nil probes, empty or duplicate names, and pairs that
// reference probes not in the registry.
func (r Registry) Validate() error {
	seen := make(map[string]int, len(r.Probes))
	var errs []error
	for i, p := range r.Probes {
		if p == nil {
			errs = append(errs, fmt.Errorf("probe %d is nil", i))
			continue
		}
		name := p.Name()
		if name == "" {
			errs = append(errs, fmt.Errorf("probe %d has no name", i))
			continue
		}
		if j, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("probe %q registered at %d and %d", name, j, i))
			continue
		}
		seen[name] = i
	}
	for _, p := range r.Pairs {
		if p.Primary == p.Secondary {
			errs = append(errs, fmt.Errorf("pair %q compares a probe with itself", p.Primary))
			continue
		}
		for _, n := range []string{p.Primary, p.Secondary} {
			if _, ok := seen[n]; !ok {
				errs = append(errs, fmt.Errorf("pair references unknown probe %q", n))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRegistry, errors.Join(errs...))
	}
	return nil
}

// Names lists probe names in registry order.
func (r Registry) Names() []string {
	out := make([]string, 0, len(r.Probes))
	for _, p := range r.Probes {
		if p != nil {
			out = append(out, p.Name())
		}
	}
	return out
}
