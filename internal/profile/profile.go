// Package profile defines the two certificate profiles this tool issues
// and the X.509 extension material each one produces.
package profile

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"net"
	"strings"

	"github.com/remiblancher/pivca/internal/cryptoutil"
	"github.com/remiblancher/pivca/internal/pki"
)

// oidEmailAddress is the PKCS#9 emailAddress DN attribute.
var oidEmailAddress = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}

// Profile selects the certificate usage and the identity bound into the
// SAN extension. Exactly two profiles exist: Server and Client.
type Profile interface {
	// Kind returns the profile name ("server" or "client").
	Kind() string

	// Resolve validates the identity and produces the extension set for
	// the given common name and key algorithm.
	Resolve(cn string, alg cryptoutil.AlgorithmID) (*ExtensionSet, error)
}

// Server is the TLS server profile: EKU serverAuth, SAN DNS(CN) plus an
// optional IP address.
type Server struct {
	IP net.IP
}

// Kind returns "server".
func (Server) Kind() string { return "server" }

// Resolve builds the extension set for a server certificate.
func (p Server) Resolve(cn string, alg cryptoutil.AlgorithmID) (*ExtensionSet, error) {
	if err := validateCommonName(cn); err != nil {
		return nil, err
	}
	if err := ValidateDNSName(cn); err != nil {
		return nil, fmt.Errorf("%w: common name: %v", pki.ErrInvalidInput, err)
	}

	set := &ExtensionSet{
		Subject:     pkix.Name{CommonName: cn},
		KeyUsage:    keyUsageFor(alg),
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    []string{NormalizeDNSName(cn)},
	}
	if p.IP != nil {
		set.IPAddresses = []net.IP{p.IP}
	}
	return set, nil
}

// Client is the TLS client profile: EKU clientAuth, SAN rfc822(email)
// when an email is given, otherwise DNS(CN).
type Client struct {
	Email string
}

// Kind returns "client".
func (Client) Kind() string { return "client" }

// Resolve builds the extension set for a client certificate.
func (p Client) Resolve(cn string, alg cryptoutil.AlgorithmID) (*ExtensionSet, error) {
	if err := validateCommonName(cn); err != nil {
		return nil, err
	}

	set := &ExtensionSet{
		Subject:     pkix.Name{CommonName: cn},
		KeyUsage:    keyUsageFor(alg),
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	if p.Email != "" {
		if err := validateEmail(p.Email); err != nil {
			return nil, fmt.Errorf("%w: %v", pki.ErrInvalidInput, err)
		}
		set.EmailAddresses = []string{p.Email}
		set.Subject.ExtraNames = []pkix.AttributeTypeAndValue{{
			Type:  oidEmailAddress,
			Value: p.Email,
		}}
	} else {
		// The SAN must never be empty; fall back to DNS(CN).
		if err := ValidateDNSName(cn); err != nil {
			return nil, fmt.Errorf("%w: common name: %v", pki.ErrInvalidInput, err)
		}
		set.DNSNames = []string{NormalizeDNSName(cn)}
	}
	return set, nil
}

// keyUsageFor returns digitalSignature, plus keyEncipherment for RSA keys
// (RSA key transport cipher suites need it, ECDSA ones do not).
func keyUsageFor(alg cryptoutil.AlgorithmID) x509.KeyUsage {
	usage := x509.KeyUsageDigitalSignature
	if alg.IsRSA() {
		usage |= x509.KeyUsageKeyEncipherment
	}
	return usage
}

// validateCommonName rejects empty and flag-like common names before any
// filesystem side effect.
func validateCommonName(cn string) error {
	if cn == "" {
		return fmt.Errorf("%w: common name is required", pki.ErrInvalidInput)
	}
	if strings.HasPrefix(cn, "-") {
		return fmt.Errorf("%w: common name %q looks like a flag", pki.ErrInvalidInput, cn)
	}
	if len(cn) > 64 {
		return fmt.Errorf("%w: common name exceeds 64 characters", pki.ErrInvalidInput)
	}
	return nil
}

// validateEmail performs a structural rfc822Name check: one @, non-empty
// local part, valid domain.
func validateEmail(email string) error {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return fmt.Errorf("invalid email address: %q", email)
	}
	if strings.ContainsAny(email, " \t\n") {
		return fmt.Errorf("invalid email address: %q", email)
	}
	if err := ValidateDNSName(email[at+1:]); err != nil {
		return fmt.Errorf("invalid email domain: %v", err)
	}
	return nil
}
