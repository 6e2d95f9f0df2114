package checks

import (
	"context"
	"sync"

	"github.com/LumeWeb/portal-legacy/internal/correlate"
	"github.com/LumeWeb/portal-legacy/internal/health"
)

const ServerDomainMissingMessage = "SERVER_DOMAIN env variable not configured"

// serverAccessPair compares the portal path against the direct server path.
func (d *Deps) serverAccessPair() correlate.Pair {
	return correlate.Pair{
		Primary:        PortalAPIAccess,
		Secondary:      ServerAPIAccess,
		PrimaryLabel:   d.Targets.PortalDomain,
		SecondaryLabel: d.Targets.ServerDomain,
	}
}

func (d *Deps) serverAccessProbe() health.Probe {
	return health.NewProbe(ServerAPIAccess, d.checkServerAccess)
}

// checkServerAccess hits the portal and the server directly at the same time
// and reports the server leg, downgraded if the two resolved to different
// addresses.
func (d *Deps) checkServerAccess(ctx context.Context) health.Result {
	if d.Targets.ServerDomain == "" {
		t := health.StartTimer()
		r := health.Result{Name: ServerAPIAccess}
		r.AddError(health.ErrorDetail{Message: ServerDomainMissingMessage})
		return t.Stop(r)
	}

	var (
		wg             sync.WaitGroup
		portal, server health.Result
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		portal = d.access(ctx, PortalAPIAccess, d.portalURL())
	}()
	go func() {
		defer wg.Done()
		server = d.access(ctx, ServerAPIAccess, "https://"+d.Targets.ServerDomain)
	}()
	wg.Wait()

	if correlate.Compare(portal, &server, d.serverAccessPair()) {
		d.Logger.Warn(ctx, "portal and server resolved to different endpoints",
			"portal_ip", portal.IP, "server_ip", server.IP)
	}
	return server
}
