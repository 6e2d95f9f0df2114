// Package cryptoutil signs and verifies published health reports with an
// AWS KMS asymmetric key.
//
// Signing is done remotely by KMS over a locally computed digest; the public
// key is fetched once and cached so verification stays local. Supported keys
// are ECDSA P-256/P-384 and RSA (PSS, with optional PKCS1v15 fallback on
// verify).
package cryptoutil
