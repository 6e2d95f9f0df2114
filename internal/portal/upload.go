package portal

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/LumeWeb/portal-legacy/internal/xerrors"
)

// Upload is a single-file multipart submission.
type Upload struct {
	URL         string
	Cookie      string
	Field       string
	Filename    string
	ContentType string
	Content     []byte
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Upload posts u as multipart/form-data.
func (c *Client) Upload(ctx context.Context, u Upload) (*Response, error) {
	field := u.Field
	if field == "" {
		field = "file"
	}
	ct := u.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(u.Filename)))
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, xerrors.Wrap(err, "create multipart part")
	}
	if _, err := part.Write(u.Content); err != nil {
		return nil, xerrors.Wrap(err, "write multipart part")
	}
	if err := mw.Close(); err != nil {
		return nil, xerrors.Wrap(err, "close multipart writer")
	}

	return c.Fetch(ctx, Request{
		Method:      http.MethodPost,
		URL:         u.URL,
		Cookie:      u.Cookie,
		Body:        &buf,
		ContentType: mw.FormDataContentType(),
	})
}
