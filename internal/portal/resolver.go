package portal

import (
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/LumeWeb/portal-legacy/internal/xerrors"
)

const (
	skylinkBase64Len = 46
	skylinkRawLen    = 34
	uriSkynetPrefix  = "sia://"
)

var base32Hex = base32.HexEncoding.WithPadding(base32.NoPadding)

// Resolver builds content URLs on a portal.
type Resolver struct {
	scheme string
	portal string
}

// NewResolver returns a resolver for portalDomain over https.
func NewResolver(portalDomain string) *Resolver {
	return &Resolver{scheme: "https", portal: strings.TrimSuffix(portalDomain, "/")}
}

// WithScheme returns a copy using scheme instead of https.
func (r *Resolver) WithScheme(scheme string) *Resolver {
	cp := *r
	cp.scheme = scheme
	return &cp
}

// PortalURL is the portal root.
func (r *Resolver) PortalURL() string {
	return r.scheme + "://" + r.portal
}

// SkylinkURL returns the path form, https://portal/<skylink>.
func (r *Resolver) SkylinkURL(skylink string) (string, error) {
	sl, err := parseSkylink(skylink)
	if err != nil {
		return "", err
	}
	return r.PortalURL() + "/" + sl, nil
}

// SkylinkSubdomainURL returns https://<base32 skylink>.portal.
func (r *Resolver) SkylinkSubdomainURL(skylink string) (string, error) {
	sl, err := parseSkylink(skylink)
	if err != nil {
		return "", err
	}
	b32, err := SkylinkToBase32(sl)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s://%s.%s", r.scheme, b32, r.portal), nil
}

// HNSSubdomainURL returns https://<name>.hns.portal.
func (r *Resolver) HNSSubdomainURL(name string) (string, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "hns://")
	if name == "" || strings.ContainsAny(name, "/.:") {
		return "", xerrors.Newf("invalid hns name %q", name)
	}
	return fmt.Sprintf("%s://%s.hns.%s", r.scheme, url.PathEscape(name), r.portal), nil
}

func parseSkylink(s string) (string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), uriSkynetPrefix)
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if len(s) != skylinkBase64Len {
		return "", xerrors.Newf("invalid skylink %q: want %d characters", s, skylinkBase64Len)
	}
	return s, nil
}

// SkylinkToBase32 re-encodes a base64url skylink as lowercase unpadded base32hex.
func SkylinkToBase32(skylink string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(skylink)
	if err != nil {
		return "", xerrors.Wrapf(err, "decode skylink %q", skylink)
	}
	if len(raw) != skylinkRawLen {
		return "", xerrors.Newf("invalid skylink %q: decoded to %d bytes", skylink, len(raw))
	}
	return strings.ToLower(base32Hex.EncodeToString(raw)), nil
}
