// Package checks implements the critical probe battery run against a portal
// and assembles it into a runner registry.
package checks

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/LumeWeb/portal-legacy/internal/auth"
	"github.com/LumeWeb/portal-legacy/internal/log"
	"github.com/LumeWeb/portal-legacy/internal/portal"
	"github.com/LumeWeb/portal-legacy/internal/xerrors"
)

// Probe names as they appear in the report.
const (
	SkydConfig          = "skyd_config"
	UploadFile          = "upload_file"
	Website             = "website"
	Skylink             = "skylink"
	SkylinkViaSubdomain = "skylink_via_subdomain"
	HNSViaSubdomain     = "hns_via_subdomain"
	RegistryWriteRead   = "registry_write_and_read"
	PortalAPIAccess     = "portal_api_access"
	ServerAPIAccess     = "server_api_access"
	Accounts            = "accounts"
	AccountWebsite      = "account_website"
	Blocker             = "blocker"
)

const (
	// ExampleSkylink is downloaded by the skylink probes.
	ExampleSkylink = "AACogzrAimYPG42tDOKhS3lXZD8YvlF8Q8R17afe95iV2Q"
	// ExampleHNSName is resolved by the HNS probe.
	ExampleHNSName = "note-to-self"

	// ModuleBlocker enables the blocker group when present in the portal
	// modules string.
	ModuleBlocker = "b"

	DefaultSkydAddr = "10.10.10.10:9980"
)

type Fetcher interface {
	Fetch(ctx context.Context, r portal.Request) (*portal.Response, error)
}

type Uploader interface {
	Upload(ctx context.Context, u portal.Upload) (*portal.Response, error)
}

type Resolver interface {
	SkylinkURL(skylink string) (string, error)
	SkylinkSubdomainURL(skylink string) (string, error)
	HNSSubdomainURL(name string) (string, error)
}

type RegistryClient interface {
	SetEntry(ctx context.Context, priv ed25519.PrivateKey, e portal.RegistryEntry, cookie string) error
	GetEntry(ctx context.Context, pub ed25519.PublicKey, dataKey, cookie string) (*portal.RegistryEntry, error)
}

// Targets are the hosts the battery probes.
type Targets struct {
	PortalDomain string
	// ServerDomain is the direct address of this portal server. Empty
	// disables the direct-path comparison with a configuration failure.
	ServerDomain string
	SkydAddr     string
	BlockerHost  string
	BlockerPort  int
}

// Flags gate optional probe groups. They are resolved once at config load.
type Flags struct {
	AccountsEnabled bool
	BlockerEnabled  bool
}

// FlagsFrom resolves the gate flags from raw configuration.
func FlagsFrom(accountsEnabled bool, portalModules string) Flags {
	return Flags{
		AccountsEnabled: accountsEnabled,
		BlockerEnabled:  strings.Contains(portalModules, ModuleBlocker),
	}
}

// Deps are the collaborators probes use.
type Deps struct {
	HTTP     Fetcher
	Uploader Uploader
	Resolver Resolver
	Registry RegistryClient
	Auth     auth.Provider
	Logger   log.Logger
	Targets  Targets

	Now    func() time.Time
	KeyGen func() (ed25519.PublicKey, ed25519.PrivateKey, error)
}

func (d *Deps) setDefaults() {
	if d.Logger == nil {
		d.Logger = log.Nop()
	}
	if d.Auth == nil {
		d.Auth = auth.None
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.KeyGen == nil {
		d.KeyGen = func() (ed25519.PublicKey, ed25519.PrivateKey, error) {
			return ed25519.GenerateKey(rand.Reader)
		}
	}
	if d.Targets.SkydAddr == "" {
		d.Targets.SkydAddr = DefaultSkydAddr
	}
}

func (d *Deps) validate() error {
	var missing []string
	if d.HTTP == nil {
		missing = append(missing, "HTTP")
	}
	if d.Uploader == nil {
		missing = append(missing, "Uploader")
	}
	if d.Resolver == nil {
		missing = append(missing, "Resolver")
	}
	if d.Registry == nil {
		missing = append(missing, "Registry")
	}
	if len(missing) > 0 {
		return xerrors.Newf("checks: missing dependencies: %s", strings.Join(missing, ", "))
	}
	if d.Targets.PortalDomain == "" {
		return xerrors.New("checks: portal domain is required")
	}
	return nil
}

func (d *Deps) portalURL() string { return "https://" + d.Targets.PortalDomain }

func (d *Deps) accountURL(path string) string {
	return "https://account." + d.Targets.PortalDomain + path
}

func (d *Deps) blockerURL() string {
	port := d.Targets.BlockerPort
	if port == 0 {
		port = 4000
	}
	return "http://" + net.JoinHostPort(d.Targets.BlockerHost, strconv.Itoa(port)) + "/health"
}

func (d *Deps) credential(ctx context.Context) (string, error) {
	c, err := d.Auth.Credential(ctx)
	if err != nil {
		return "", xerrors.Wrap(err, "get auth credential")
	}
	return c, nil
}
