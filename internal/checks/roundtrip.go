package checks

import (
	"context"

	"github.com/LumeWeb/portal-legacy/internal/health"
	"github.com/LumeWeb/portal-legacy/internal/portal"
)

const RegistryMismatchMessage = "Data mismatch in registry (read after write)"

// registryEntryView is how entries are rendered in the mismatch detail.
type registryEntryView struct {
	DataKey  string `json:"dataKey"`
	Data     string `json:"data"`
	Revision uint64 `json:"revision"`
}

func viewOf(e *portal.RegistryEntry) any {
	if e == nil {
		return nil
	}
	return registryEntryView{DataKey: e.DataKey, Data: string(e.Data), Revision: e.Revision}
}

func (d *Deps) registryProbe() health.Probe {
	return health.NewProbe(RegistryWriteRead, d.checkRegistryRoundTrip)
}

// checkRegistryRoundTrip writes a fixed entry under a fresh key and reads it
// straight back. Faults are reported through Errors, never ErrorMessage.
func (d *Deps) checkRegistryRoundTrip(ctx context.Context) health.Result {
	t := health.StartTimer()
	r := health.Result{Name: RegistryWriteRead}

	fail := func(err error) health.Result {
		r.AddError(health.ErrorDetail{Message: health.RemoteMessage(err)})
		return t.Stop(r)
	}

	cookie, err := d.credential(ctx)
	if err != nil {
		return fail(err)
	}
	pub, priv, err := d.KeyGen()
	if err != nil {
		return fail(err)
	}

	expected := portal.RegistryEntry{DataKey: "foo-key", Data: []byte("foo-data"), Revision: 0}
	if err := d.Registry.SetEntry(ctx, priv, expected, cookie); err != nil {
		return fail(err)
	}
	entry, err := d.Registry.GetEntry(ctx, pub, expected.DataKey, cookie)
	if err != nil {
		return fail(err)
	}

	if !expected.Equal(entry) {
		r.AddError(health.ErrorDetail{
			Message: RegistryMismatchMessage,
			Context: map[string]any{
				"entry":    viewOf(entry),
				"expected": viewOf(&expected),
			},
		})
		return t.Stop(r)
	}
	r.Up = true
	return t.Stop(r)
}
