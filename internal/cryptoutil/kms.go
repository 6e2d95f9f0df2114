package cryptoutil

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/LumeWeb/portal-legacy/internal/xerrors"
)

// kmsAPI is the subset of the KMS API the signer uses.
type kmsAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// Signature is a detached signature over a published document.
type Signature struct {
	KeyID     string `json:"keyId"`
	Algorithm string `json:"algorithm"`
	Digest    string `json:"sha256"`
	Value     []byte `json:"signature"`
}

type KMSSigner struct {
	client kmsAPI
	keyARN string

	// AllowPKCS1v15 accepts RSA PKCS1v15 signatures on verify when PSS fails.
	AllowPKCS1v15 bool

	mu     sync.RWMutex
	pubKey crypto.PublicKey
}

func NewKMSSigner(client *kms.Client, keyARN string) *KMSSigner {
	s := &KMSSigner{keyARN: keyARN}
	if client != nil {
		s.client = client
	}
	return s
}

// PublicKey fetches and caches the KMS public key. First call hits the KMS
// API, subsequent calls return the cached key.
func (s *KMSSigner) PublicKey(ctx context.Context) (crypto.PublicKey, error) {
	s.mu.RLock()
	if s.pubKey != nil {
		defer s.mu.RUnlock()
		return s.pubKey, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pubKey != nil {
		return s.pubKey, nil
	}

	if s.client == nil {
		return nil, xerrors.New("kms client is not configured")
	}

	out, err := s.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(s.keyARN),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "kms get public key")
	}

	if out.KeyUsage != kmstypes.KeyUsageTypeSignVerify {
		return nil, xerrors.Newf("kms key %s has KeyUsage=%s, expected SIGN_VERIFY", s.keyARN, out.KeyUsage)
	}

	pub, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse kms public key DER")
	}

	s.pubKey = pub
	return s.pubKey, nil
}

// Sign computes the digest matching the key type locally and has KMS sign
// it. The returned Signature carries the SHA-256 of message for lookup.
func (s *KMSSigner) Sign(ctx context.Context, message []byte) (Signature, error) {
	pub, err := s.PublicKey(ctx)
	if err != nil {
		return Signature{}, err
	}

	var (
		alg    kmstypes.SigningAlgorithmSpec
		digest []byte
	)
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		h, d, err := ecdsaDigest(key, message)
		if err != nil {
			return Signature{}, err
		}
		digest = d
		alg = kmstypes.SigningAlgorithmSpecEcdsaSha256
		if h == crypto.SHA384 {
			alg = kmstypes.SigningAlgorithmSpecEcdsaSha384
		}
	case *rsa.PublicKey:
		d := sha256.Sum256(message)
		digest = d[:]
		alg = kmstypes.SigningAlgorithmSpecRsassaPssSha256
	default:
		return Signature{}, xerrors.Newf("unsupported public key type: %T", pub)
	}

	out, err := s.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyARN),
		Message:          digest,
		MessageType:      kmstypes.MessageTypeDigest,
		SigningAlgorithm: alg,
	})
	if err != nil {
		return Signature{}, xerrors.Wrap(err, "kms sign")
	}
	return Signature{
		KeyID:     s.keyARN,
		Algorithm: string(alg),
		Digest:    SHA256Hex(message),
		Value:     out.Signature,
	}, nil
}

// VerifySignature verifies signature over message with the cached public
// key.
//
// Key type determines the hash algorithm:
//   - ECDSA P-384: SHA-384
//   - ECDSA P-256: SHA-256
//   - RSA: SHA-256 (PSS only; PKCS1v15 fallback when AllowPKCS1v15 is true)
func (s *KMSSigner) VerifySignature(ctx context.Context, message, signature []byte) error {
	pub, err := s.PublicKey(ctx)
	if err != nil {
		return err
	}

	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		return verifyECDSA(key, message, signature)
	case *rsa.PublicKey:
		return verifyRSA(key, message, signature, s.AllowPKCS1v15)
	default:
		return xerrors.Newf("unsupported public key type: %T", pub)
	}
}

func verifyECDSA(key *ecdsa.PublicKey, message, signature []byte) error {
	hashFunc, digest, err := ecdsaDigest(key, message)
	if err != nil {
		return err
	}
	if !ecdsa.VerifyASN1(key, digest, signature) {
		return xerrors.Newf("ECDSA signature verification failed. hash: %s, curve: %s", hashFunc.String(), key.Curve.Params().Name)
	}
	return nil
}

// ecdsaDigest selects the hash function from the curve.
func ecdsaDigest(key *ecdsa.PublicKey, message []byte) (crypto.Hash, []byte, error) {
	switch key.Curve {
	case elliptic.P256():
		d := sha256.Sum256(message)
		return crypto.SHA256, d[:], nil
	case elliptic.P384():
		d := sha512.Sum384(message)
		return crypto.SHA384, d[:], nil
	default:
		return 0, nil, xerrors.Newf("unsupported ECDSA curve: %v", key.Curve.Params().Name)
	}
}

func verifyRSA(key *rsa.PublicKey, message, signature []byte, allowFallback bool) error {
	digest := sha256.Sum256(message)

	pssErr := rsa.VerifyPSS(key, crypto.SHA256, digest[:], signature, nil)
	if pssErr == nil {
		return nil
	}

	if !allowFallback {
		return xerrors.Newf("RSA-PSS verification failed (PKCS1v15 fallback disabled): %v", pssErr)
	}

	return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature)
}
