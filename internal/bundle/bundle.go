// Package bundle assembles the deliverable artifacts for an issued
// certificate: the fullchain PEM, a PKCS#12 container, and a zip of the
// output directory.
package bundle

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"os"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/remiblancher/pivca/internal/x509util"
)

// Fullchain returns leaf followed by issuer, both PEM encoded. The leaf
// comes first so that the file can be handed to TLS servers directly.
func Fullchain(leaf, issuer *x509.Certificate) []byte {
	out := x509util.EncodeCertificatePEM(leaf)
	return append(out, x509util.EncodeCertificatePEM(issuer)...)
}

// WriteFullchain writes the fullchain PEM to path.
func WriteFullchain(path string, leaf, issuer *x509.Certificate) error {
	if err := os.WriteFile(path, Fullchain(leaf, issuer), 0644); err != nil {
		return fmt.Errorf("failed to write fullchain: %w", err)
	}
	return nil
}

// WritePKCS12 packages the private key, leaf and issuer certificate into
// a PKCS#12 file. Both bags are encrypted with AES-256-CBC regardless of
// the password length.
func WritePKCS12(path string, key crypto.PrivateKey, leaf, issuer *x509.Certificate, password string) error {
	pfx, err := pkcs12.Modern2023.Encode(key, leaf, []*x509.Certificate{issuer}, password)
	if err != nil {
		return fmt.Errorf("failed to encode PKCS#12: %w", err)
	}

	if err := os.WriteFile(path, pfx, 0600); err != nil {
		return fmt.Errorf("failed to write PKCS#12: %w", err)
	}
	return nil
}
