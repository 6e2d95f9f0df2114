// Package correlate compares results of probes that reach the same service
// over different network paths.
package correlate

import "github.com/LumeWeb/portal-legacy/internal/health"

// MismatchMessage is the error detail added to the secondary result when the
// two paths resolved to different endpoints.
const MismatchMessage = "Access ip mismatch between portal and server access"

// Pair designates two probes by result name. Only the secondary is ever
// modified. The labels name each path in the mismatch detail (e.g. the
// portal and server domains).
type Pair struct {
	Primary        string
	Secondary      string
	PrimaryLabel   string
	SecondaryLabel string
}

// Compare downgrades secondary when its endpoint address differs from the
// primary's. A missing address on either side counts as different. It
// reports whether a mismatch was recorded.
func Compare(primary health.Result, secondary *health.Result, p Pair) bool {
	if secondary == nil || primary.IP == secondary.IP {
		return false
	}
	secondary.AddError(health.ErrorDetail{
		Message: MismatchMessage,
		Context: map[string]any{
			"response": map[string]any{
				"portal": endpoint(p.PrimaryLabel, primary.IP),
				"server": endpoint(p.SecondaryLabel, secondary.IP),
			},
		},
	})
	return true
}

func endpoint(name, ip string) map[string]any {
	m := map[string]any{"name": name, "ip": nil}
	if ip != "" {
		m["ip"] = ip
	}
	return m
}

// Apply runs Compare for every pair whose two results are both present in
// results, mutating the secondary in place. Pairs with a missing side are
// skipped. It returns the number of mismatches recorded.
func Apply(results []health.Result, pairs []Pair) int {
	if len(pairs) == 0 {
		return 0
	}
	idx := make(map[string]int, len(results))
	for i, r := range results {
		idx[r.Name] = i
	}
	n := 0
	for _, p := range pairs {
		pi, ok1 := idx[p.Primary]
		si, ok2 := idx[p.Secondary]
		if !ok1 || !ok2 || pi == si {
			continue
		}
		if Compare(results[pi], &results[si], p) {
			n++
		}
	}
	return n
}
