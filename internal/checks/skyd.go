package checks

import (
	"context"
	"net/http"

	"github.com/LumeWeb/portal-legacy/internal/health"
	"github.com/LumeWeb/portal-legacy/internal/portal"
	"github.com/LumeWeb/portal-legacy/internal/xerrors"
)

const (
	// ExpectedContractFunding is the per-contract initial funding (10 SC in
	// hastings) every portal must run with.
	ExpectedContractFunding = "10000000000000000000000000"

	ContractFundingMessage = "Skynet Portal Per-Contract Budget is not set correctly!"
)

type renterSettings struct {
	Settings struct {
		Allowance struct {
			PaymentContractInitialFunding any `json:"paymentcontractinitialfunding"`
		} `json:"allowance"`
	} `json:"settings"`
}

func (d *Deps) skydConfigProbe() health.Probe {
	return health.NewProbe(SkydConfig, d.checkSkydConfig)
}

// checkSkydConfig asserts the renter allowance funding on the storage backend.
func (d *Deps) checkSkydConfig(ctx context.Context) health.Result {
	t := health.StartTimer()
	r := health.Result{Name: SkydConfig}

	hdr := http.Header{}
	hdr.Set("User-Agent", "Sia-Agent")
	var body renterSettings
	resp, err := d.fetchJSON(ctx, portal.Request{URL: "http://" + d.Targets.SkydAddr + "/renter", Header: hdr}, &body)
	if resp != nil {
		r.IP = resp.RemoteAddr
	}
	if err != nil {
		r.Fail(err)
		return t.Stop(r)
	}

	if v, ok := body.Settings.Allowance.PaymentContractInitialFunding.(string); !ok || v != ExpectedContractFunding {
		r.Fail(xerrors.New(ContractFundingMessage))
		return t.Stop(r)
	}
	r.Up = true
	return t.Stop(r)
}

// fetchJSON fetches and decodes; a body that is not JSON is a failure.
func (d *Deps) fetchJSON(ctx context.Context, req portal.Request, v any) (*portal.Response, error) {
	resp, err := d.HTTP.Fetch(ctx, req)
	if err != nil {
		return resp, err
	}
	if err := resp.JSON(v); err != nil {
		return resp, err
	}
	return resp, nil
}
