package checks

import (
	"context"
	"net/http"

	"github.com/LumeWeb/portal-legacy/internal/health"
	"github.com/LumeWeb/portal-legacy/internal/portal"
)

const (
	dbAliveFlag = "dbAlive"

	BlockerHostMissingMessage = "BLOCKER_HOST env variable not configured"
)

// nestedHealth fetches a JSON health document and is up only when its
// dbAlive flag is true.
func (d *Deps) nestedHealth(ctx context.Context, name, url string, reportIP bool) health.Result {
	t := health.StartTimer()
	r := health.Result{Name: name}

	hdr := http.Header{}
	hdr.Set("Accept", "application/json")
	resp, err := d.HTTP.Fetch(ctx, portal.Request{URL: url, Header: hdr})
	if resp != nil && reportIP {
		r.IP = resp.RemoteAddr
	}
	if err != nil {
		r.Fail(err)
		return t.Stop(r)
	}

	r.SetStatus(resp.StatusCode)
	body := health.DecodeBody(resp.Body)
	r.Response = body
	if m, ok := body.(map[string]any); ok && m[dbAliveFlag] == true {
		r.Up = true
		return t.Stop(r)
	}
	r.ErrorMessage = dbAliveFlag + " is not true"
	return t.Stop(r)
}

func (d *Deps) accountsProbe() health.Probe {
	return health.NewProbe(Accounts, func(ctx context.Context) health.Result {
		return d.nestedHealth(ctx, Accounts, d.accountURL("/health"), true)
	})
}

// blockerProbe never reports an address: the blocker runs on the private
// network and its IP is not comparable to the public paths.
func (d *Deps) blockerProbe() health.Probe {
	return health.NewProbe(Blocker, func(ctx context.Context) health.Result {
		if d.Targets.BlockerHost == "" {
			t := health.StartTimer()
			r := health.Result{Name: Blocker}
			r.AddError(health.ErrorDetail{Message: BlockerHostMissingMessage})
			return t.Stop(r)
		}
		return d.nestedHealth(ctx, Blocker, d.blockerURL(), false)
	}, health.WithoutEndpointAddress())
}
