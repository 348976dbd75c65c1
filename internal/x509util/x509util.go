// Package x509util provides helpers for building and parsing CSRs and
// certificate identifiers.
package x509util

import (
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"net"
)

// CSRRequest holds the parameters for creating a certificate request.
type CSRRequest struct {
	// Subject is the requested DN.
	Subject pkix.Name

	// Subject Alternative Names.
	DNSNames       []string
	EmailAddresses []string
	IPAddresses    []net.IP

	// ExtraExtensions are carried in the extensionRequest attribute.
	// Issuer-side extensions (SKID, AKID) do not belong here.
	ExtraExtensions []pkix.Extension

	// Signer holds the subject key pair.
	Signer crypto.Signer
}

// CreateCSR creates and parses a PKCS#10 certificate request.
func CreateCSR(req CSRRequest) (*x509.CertificateRequest, error) {
	if req.Signer == nil {
		return nil, fmt.Errorf("signer is required")
	}

	template := &x509.CertificateRequest{
		Subject:         req.Subject,
		DNSNames:        req.DNSNames,
		EmailAddresses:  req.EmailAddresses,
		IPAddresses:     req.IPAddresses,
		ExtraExtensions: req.ExtraExtensions,
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, template, req.Signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSR: %w", err)
	}

	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSR: %w", err)
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, fmt.Errorf("CSR signature check failed: %w", err)
	}

	return csr, nil
}

// SubjectKeyID computes the subject key identifier from a public key.
// Uses SHA-256 hash of the PKIX public key bytes, truncated to 160 bits.
func SubjectKeyID(pub crypto.PublicKey) ([]byte, error) {
	pubBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	hash := sha256.Sum256(pubBytes)
	return hash[:20], nil
}

// EncodeCertificatePEM encodes a certificate as PEM.
func EncodeCertificatePEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// EncodeCSRPEM encodes a certificate request as PEM.
func EncodeCSRPEM(csr *x509.CertificateRequest) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csr.Raw})
}

// ParseCertificatePEM parses the first certificate in a PEM bundle.
func ParseCertificatePEM(data []byte) (*x509.Certificate, error) {
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		return cert, nil
	}
	return nil, fmt.Errorf("no certificate found in PEM data")
}
