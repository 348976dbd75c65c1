package profile

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"net"
)

// Extension OIDs (RFC 5280).
var (
	oidBasicConstraints = asn1.ObjectIdentifier{2, 5, 29, 19}
	oidKeyUsage         = asn1.ObjectIdentifier{2, 5, 29, 15}
	oidExtKeyUsage      = asn1.ObjectIdentifier{2, 5, 29, 37}
)

// EKU OIDs.
var (
	oidEKUServerAuth = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 1}
	oidEKUClientAuth = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 2}
)

// ExtensionSet is the resolved extension material for one certificate.
// The request-time extensions (basicConstraints, keyUsage, extKeyUsage,
// SAN) go into the CSR; the issuer adds SKID and AKID at signing time.
type ExtensionSet struct {
	Subject pkix.Name

	KeyUsage    x509.KeyUsage
	ExtKeyUsage []x509.ExtKeyUsage

	DNSNames       []string
	EmailAddresses []string
	IPAddresses    []net.IP
}

// RequestExtensions encodes basicConstraints, keyUsage and extKeyUsage
// for the CSR's extensionRequest attribute. SANs are carried separately
// on the CSR template.
func (e *ExtensionSet) RequestExtensions() ([]pkix.Extension, error) {
	bc, err := marshalBasicConstraints()
	if err != nil {
		return nil, err
	}
	ku, err := marshalKeyUsage(e.KeyUsage)
	if err != nil {
		return nil, err
	}
	eku, err := marshalExtKeyUsage(e.ExtKeyUsage)
	if err != nil {
		return nil, err
	}
	return []pkix.Extension{bc, ku, eku}, nil
}

// Apply sets the extension fields on a certificate template. SKID and
// AKID are the issuer's responsibility and are set during issuance.
func (e *ExtensionSet) Apply(cert *x509.Certificate) {
	cert.Subject = e.Subject
	cert.KeyUsage = e.KeyUsage
	cert.ExtKeyUsage = e.ExtKeyUsage
	cert.DNSNames = e.DNSNames
	cert.EmailAddresses = e.EmailAddresses
	cert.IPAddresses = e.IPAddresses
	cert.BasicConstraintsValid = true
	cert.IsCA = false
}

// marshalBasicConstraints encodes CA:FALSE as a critical extension.
// cA defaults to FALSE, so the DER body is an empty SEQUENCE.
func marshalBasicConstraints() (pkix.Extension, error) {
	value, err := asn1.Marshal(struct{}{})
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("failed to marshal basicConstraints: %w", err)
	}
	return pkix.Extension{Id: oidBasicConstraints, Critical: true, Value: value}, nil
}

// marshalKeyUsage encodes the key usage bits as a critical BIT STRING.
func marshalKeyUsage(usage x509.KeyUsage) (pkix.Extension, error) {
	// x509.KeyUsage bit i maps to BIT STRING bit i (MSB first per byte).
	var bytes [2]byte
	bitLen := 0
	for i := 0; i < 9; i++ {
		if usage&(1<<uint(i)) != 0 {
			bytes[i/8] |= 0x80 >> uint(i%8)
			bitLen = i + 1
		}
	}

	nBytes := (bitLen + 7) / 8
	value, err := asn1.Marshal(asn1.BitString{Bytes: bytes[:nBytes], BitLength: bitLen})
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("failed to marshal keyUsage: %w", err)
	}
	return pkix.Extension{Id: oidKeyUsage, Critical: true, Value: value}, nil
}

// marshalExtKeyUsage encodes the EKU OID sequence.
func marshalExtKeyUsage(usages []x509.ExtKeyUsage) (pkix.Extension, error) {
	var oids []asn1.ObjectIdentifier
	for _, u := range usages {
		switch u {
		case x509.ExtKeyUsageServerAuth:
			oids = append(oids, oidEKUServerAuth)
		case x509.ExtKeyUsageClientAuth:
			oids = append(oids, oidEKUClientAuth)
		default:
			return pkix.Extension{}, fmt.Errorf("unsupported extended key usage: %d", u)
		}
	}

	value, err := asn1.Marshal(oids)
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("failed to marshal extKeyUsage: %w", err)
	}
	return pkix.Extension{Id: oidExtKeyUsage, Critical: false, Value: value}, nil
}
