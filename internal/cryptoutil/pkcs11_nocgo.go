//go:build !cgo

// Stub implementations when CGO is not available. Token access via
// PKCS#11 requires CGO.

package cryptoutil

import (
	"crypto"
	"fmt"
	"io"
)

// PKCS11Config holds PKCS#11 configuration.
type PKCS11Config struct {
	ModulePath  string
	TokenLabel  string
	TokenSerial string
	PIN         string
	KeyLabel    string
	KeyID       string
	SlotID      *uint
}

// PKCS11Signer is the stub used when CGO is not available.
type PKCS11Signer struct{}

var errNoCGO = fmt.Errorf("PKCS#11 support requires CGO (build with CGO_ENABLED=1)")

// NewPKCS11Signer returns an error when CGO is not available.
func NewPKCS11Signer(_ PKCS11Config) (*PKCS11Signer, error) {
	return nil, errNoCGO
}

// Algorithm returns the algorithm of the token key.
func (s *PKCS11Signer) Algorithm() AlgorithmID {
	return ""
}

// Public returns the public key.
func (s *PKCS11Signer) Public() crypto.PublicKey {
	return nil
}

// Sign signs the digest on the token.
func (s *PKCS11Signer) Sign(_ io.Reader, _ []byte, _ crypto.SignerOpts) ([]byte, error) {
	return nil, errNoCGO
}

// Close marks the signer closed.
func (s *PKCS11Signer) Close() error {
	return nil
}

// CloseAllPools closes all session pools. No-op without CGO.
func CloseAllPools() {
}
