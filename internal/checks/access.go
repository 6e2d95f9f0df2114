package checks

import (
	"context"

	"github.com/LumeWeb/portal-legacy/internal/health"
	"github.com/LumeWeb/portal-legacy/internal/portal"
)

// access is the generic reachability check: an authenticated, cache-busting
// GET where any 2xx counts as up.
func (d *Deps) access(ctx context.Context, name, url string) health.Result {
	t := health.StartTimer()
	r := health.Result{Name: name, URL: url}

	cookie, err := d.credential(ctx)
	if err != nil {
		r.Fail(err)
		return t.Stop(r)
	}

	resp, err := d.HTTP.Fetch(ctx, portal.Request{URL: url, Cookie: "nocache=true;" + cookie})
	if resp != nil {
		r.IP = resp.RemoteAddr
	}
	if err != nil {
		r.Fail(err)
		return t.Stop(r)
	}

	r.SetStatus(resp.StatusCode)
	r.Up = true
	d.Logger.Debug(ctx, "probe endpoint", "probe", name, "url", url, "ip", r.IP)
	return t.Stop(r)
}

// accessProbe checks a fixed URL.
func (d *Deps) accessProbe(name, url string) health.Probe {
	return health.NewProbe(name, func(ctx context.Context) health.Result {
		return d.access(ctx, name, url)
	})
}

// resolvedAccessProbe checks a URL built by the resolver at run time. A
// resolver failure is a probe failure.
func (d *Deps) resolvedAccessProbe(name string, resolve func() (string, error)) health.Probe {
	return health.NewProbe(name, func(ctx context.Context) health.Result {
		url, err := resolve()
		if err != nil {
			t := health.StartTimer()
			r := health.Result{Name: name}
			r.Fail(err)
			return t.Stop(r)
		}
		return d.access(ctx, name, url)
	})
}
