// Package ca signs certificate requests with a CA whose private key is
// held behind a crypto.Signer, typically on a PKCS#11 token.
package ca

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/remiblancher/pivca/internal/cryptoutil"
	"github.com/remiblancher/pivca/internal/pki"
	"github.com/remiblancher/pivca/internal/profile"
	"github.com/remiblancher/pivca/internal/x509util"
)

// CA holds the issuer certificate, its signer, and the serial counter.
type CA struct {
	cert    *x509.Certificate
	signer  cryptoutil.Signer
	serials SerialStore
}

// New creates a CA from an already loaded issuer certificate.
func New(cert *x509.Certificate, signer cryptoutil.Signer, serials SerialStore) *CA {
	return &CA{cert: cert, signer: signer, serials: serials}
}

// LoadCertificate reads the CA certificate from a PEM file. A missing
// file is reported as a missing-CA error so callers can map it to the
// right exit code.
func LoadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", pki.ErrMissingCA, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	cert, err := x509util.ParseCertificatePEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate %s: %w", path, err)
	}
	return cert, nil
}

// Certificate returns the issuer certificate.
func (ca *CA) Certificate() *x509.Certificate {
	return ca.cert
}

// IssueRequest holds the parameters for issuing a certificate.
type IssueRequest struct {
	// CSR is the verified certificate request.
	CSR *x509.CertificateRequest

	// Extensions is the resolved extension set for the subject profile.
	Extensions *profile.ExtensionSet

	// Validity is the certificate lifetime from now.
	Validity time.Duration
}

// Issue signs a certificate for the request. The digest is matched to
// the CA key's strength; SKID is computed from the subject public key
// and AKID copied from the issuer. The serial counter advances exactly
// once per call, so a signing failure consumes a serial.
func (ca *CA) Issue(ctx context.Context, req IssueRequest) (*x509.Certificate, error) {
	if req.CSR == nil {
		return nil, fmt.Errorf("CSR is required")
	}
	if req.Extensions == nil {
		return nil, fmt.Errorf("extension set is required")
	}
	if err := req.CSR.CheckSignature(); err != nil {
		return nil, fmt.Errorf("CSR signature check failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	template := &x509.Certificate{}
	req.Extensions.Apply(template)

	template.Issuer = ca.cert.Subject

	serial, err := ca.serials.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial number: %w", err)
	}
	template.SerialNumber = serial

	template.AuthorityKeyId = ca.cert.SubjectKeyId
	if len(template.AuthorityKeyId) == 0 {
		akid, err := x509util.SubjectKeyID(ca.signer.Public())
		if err != nil {
			return nil, fmt.Errorf("failed to compute authority key ID: %w", err)
		}
		template.AuthorityKeyId = akid
	}

	skid, err := x509util.SubjectKeyID(req.CSR.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to compute subject key ID: %w", err)
	}
	template.SubjectKeyId = skid

	template.NotBefore = time.Now().UTC()
	template.NotAfter = template.NotBefore.Add(req.Validity)

	template.SignatureAlgorithm = ca.signer.Algorithm().X509SignatureAlgorithm()

	certDER, err := x509.CreateCertificate(rand.Reader, template, ca.cert, req.CSR.PublicKey, ca.signer)
	if err != nil {
		return nil, &pki.SignError{Op: "sign", Serial: fmt.Sprintf("0x%X", serial.Bytes()), Err: err}
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse issued certificate: %w", err)
	}

	return cert, nil
}
