package portal

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/crypto/blake2b"

	"github.com/LumeWeb/portal-legacy/internal/xerrors"
)

const registryPath = "/skynet/registry"

// RegistryEntry is the logical content of a registry slot.
type RegistryEntry struct {
	DataKey  string `json:"dataKey"`
	Data     []byte `json:"data"`
	Revision uint64 `json:"revision"`
}

// Equal reports whether two entries carry the same key, data and revision.
func (e *RegistryEntry) Equal(o *RegistryEntry) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.DataKey == o.DataKey && e.Revision == o.Revision && bytes.Equal(e.Data, o.Data)
}

// RegistryClient reads and writes signed registry entries.
type RegistryClient struct {
	c    *Client
	base string
}

// NewRegistryClient targets the registry endpoint of portalURL (scheme://host).
func NewRegistryClient(c *Client, portalURL string) *RegistryClient {
	return &RegistryClient{c: c, base: portalURL}
}

// byteList marshals as a JSON array of numbers.
type byteList []byte

func (b byteList) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}

type publicKeyJSON struct {
	Algorithm string   `json:"algorithm"`
	Key       byteList `json:"key"`
}

type setEntryRequest struct {
	PublicKey publicKeyJSON `json:"publickey"`
	DataKey   string        `json:"datakey"`
	Revision  uint64        `json:"revision"`
	Data      byteList      `json:"data"`
	Signature byteList      `json:"signature"`
}

type getEntryResponse struct {
	Data      string      `json:"data"`
	Revision  json.Number `json:"revision"`
	Signature string      `json:"signature"`
}

// SetEntry signs e with priv and writes it.
func (rc *RegistryClient) SetEntry(ctx context.Context, priv ed25519.PrivateKey, e RegistryEntry, cookie string) error {
	if len(priv) != ed25519.PrivateKeySize {
		return xerrors.Newf("invalid private key size %d", len(priv))
	}
	pub := priv.Public().(ed25519.PublicKey)
	keyHash := HashDataKey(e.DataKey)
	sig := ed25519.Sign(priv, HashRegistryEntry(keyHash, e.Data, e.Revision))

	body := setEntryRequest{
		PublicKey: publicKeyJSON{Algorithm: "ed25519", Key: byteList(pub)},
		DataKey:   hex.EncodeToString(keyHash),
		Revision:  e.Revision,
		Data:      byteList(e.Data),
		Signature: byteList(sig),
	}
	if _, err := rc.c.PostJSON(ctx, rc.base+registryPath, cookie, body); err != nil {
		return xerrors.Wrap(err, "set registry entry")
	}
	return nil
}

// GetEntry reads the entry at (pub, dataKey) and verifies its signature.
// A missing entry returns (nil, nil).
func (rc *RegistryClient) GetEntry(ctx context.Context, pub ed25519.PublicKey, dataKey string, cookie string) (*RegistryEntry, error) {
	keyHash := HashDataKey(dataKey)
	q := url.Values{}
	q.Set("publickey", "ed25519:"+hex.EncodeToString(pub))
	q.Set("datakey", hex.EncodeToString(keyHash))

	var out getEntryResponse
	_, err := rc.c.GetJSON(ctx, Request{URL: rc.base + registryPath + "?" + q.Encode(), Cookie: cookie}, &out)
	if err != nil {
		var re *ResponseError
		if errors.As(err, &re) && re.Response.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, xerrors.Wrap(err, "get registry entry")
	}

	data, err := hex.DecodeString(out.Data)
	if err != nil {
		return nil, xerrors.Wrap(err, "decode registry data")
	}
	sig, err := hex.DecodeString(out.Signature)
	if err != nil {
		return nil, xerrors.Wrap(err, "decode registry signature")
	}
	rev, err := strconv.ParseUint(out.Revision.String(), 10, 64)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse registry revision")
	}
	if !ed25519.Verify(pub, HashRegistryEntry(keyHash, data, rev), sig) {
		return nil, xerrors.New("could not verify signature from retrieved, signed registry entry")
	}
	return &RegistryEntry{DataKey: dataKey, Data: data, Revision: rev}, nil
}

// encodePrefixed is the 8-byte little-endian length followed by b.
func encodePrefixed(b []byte) []byte {
	out := make([]byte, 8+len(b))
	binary.LittleEndian.PutUint64(out, uint64(len(b)))
	copy(out[8:], b)
	return out
}

// HashDataKey is blake2b-256 over the length-prefixed UTF-8 key.
func HashDataKey(dataKey string) []byte {
	h := blake2b.Sum256(encodePrefixed([]byte(dataKey)))
	return h[:]
}

// HashRegistryEntry is the digest that gets signed for an entry.
func HashRegistryEntry(dataKeyHash, data []byte, revision uint64) []byte {
	buf := make([]byte, 0, len(dataKeyHash)+8+len(data)+8)
	buf = append(buf, dataKeyHash...)
	buf = append(buf, encodePrefixed(data)...)
	buf = binary.LittleEndian.AppendUint64(buf, revision)
	h := blake2b.Sum256(buf)
	return h[:]
}
