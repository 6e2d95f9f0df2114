package checks

import (
	"context"
	"time"

	"github.com/LumeWeb/portal-legacy/internal/health"
	"github.com/LumeWeb/portal-legacy/internal/portal"
)

func (d *Deps) uploadProbe() health.Probe {
	return health.NewProbe(UploadFile, d.checkUpload)
}

// checkUpload submits a small text file carrying the current time so every
// run uploads unique content.
func (d *Deps) checkUpload(ctx context.Context) health.Result {
	t := health.StartTimer()
	r := health.Result{Name: UploadFile}

	cookie, err := d.credential(ctx)
	if err != nil {
		r.Fail(err)
		return t.Stop(r)
	}

	resp, err := d.Uploader.Upload(ctx, portal.Upload{
		URL:         d.portalURL() + "/skynet/skyfile",
		Cookie:      cookie,
		Field:       "file",
		Filename:    "time.txt",
		ContentType: "text/plain",
		Content:     []byte(d.Now().UTC().Format(time.RFC3339Nano)),
	})
	if resp != nil {
		r.IP = resp.RemoteAddr
	}
	if err != nil {
		r.Fail(err)
		return t.Stop(r)
	}

	r.SetStatus(resp.StatusCode)
	r.Up = true
	return t.Stop(r)
}
