package checks

import (
	"github.com/LumeWeb/portal-legacy/internal/auth"
	"github.com/LumeWeb/portal-legacy/internal/health"
	"github.com/LumeWeb/portal-legacy/internal/runner"
)

// group is a set of probes included when enabled is true.
type group struct {
	enabled bool
	probes  func(d *Deps) []health.Probe
}

func baseProbes(d *Deps) []health.Probe {
	return []health.Probe{
		d.skydConfigProbe(),
		d.uploadProbe(),
		d.accessProbe(Website, d.portalURL()),
		d.resolvedAccessProbe(Skylink, func() (string, error) {
			return d.Resolver.SkylinkURL(ExampleSkylink)
		}),
		d.resolvedAccessProbe(SkylinkViaSubdomain, func() (string, error) {
			return d.Resolver.SkylinkSubdomainURL(ExampleSkylink)
		}),
		d.resolvedAccessProbe(HNSViaSubdomain, func() (string, error) {
			return d.Resolver.HNSSubdomainURL(ExampleHNSName)
		}),
		d.registryProbe(),
		d.serverAccessProbe(),
	}
}

func accountsProbes(d *Deps) []health.Probe {
	return []health.Probe{
		d.accountsProbe(),
		d.accessProbe(AccountWebsite, d.accountURL("/auth/login")),
	}
}

func blockerProbes(d *Deps) []health.Probe {
	return []health.Probe{d.blockerProbe()}
}

// Registry assembles the critical battery. It does no I/O: the flags decide
// which groups are appended to the base set. Build a new registry for every
// run, since the credential is fetched once per registry.
func Registry(d Deps, f Flags) (runner.Registry, error) {
	if err := d.validate(); err != nil {
		return runner.Registry{}, err
	}
	d.setDefaults()
	// one login per run; a session that expires between runs is replaced
	d.Auth = auth.NewCached(d.Auth)
	deps := &d

	groups := []group{
		{enabled: true, probes: baseProbes},
		{enabled: f.AccountsEnabled, probes: accountsProbes},
		{enabled: f.BlockerEnabled, probes: blockerProbes},
	}

	var reg runner.Registry
	for _, g := range groups {
		if g.enabled {
			reg.Probes = append(reg.Probes, g.probes(deps)...)
		}
	}
	if err := reg.Validate(); err != nil {
		return runner.Registry{}, err
	}
	return reg, nil
}
