package profile

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"testing"
)

func TestU_RequestExtensions(t *testing.T) {
	set := &ExtensionSet{
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	exts, err := set.RequestExtensions()
	if err != nil {
		t.Fatalf("RequestExtensions() error = %v", err)
	}
	if len(exts) != 3 {
		t.Fatalf("got %d extensions, want 3", len(exts))
	}

	bc := exts[0]
	if !bc.Id.Equal(oidBasicConstraints) || !bc.Critical {
		t.Errorf("basicConstraints = %+v, want critical %v", bc, oidBasicConstraints)
	}
	// CA defaults to FALSE, so the encoded body is an empty SEQUENCE.
	if !bytes.Equal(bc.Value, []byte{0x30, 0x00}) {
		t.Errorf("basicConstraints value = %x, want 3000", bc.Value)
	}

	ku := exts[1]
	if !ku.Id.Equal(oidKeyUsage) || !ku.Critical {
		t.Errorf("keyUsage = %+v, want critical %v", ku, oidKeyUsage)
	}
	var bits asn1.BitString
	if _, err := asn1.Unmarshal(ku.Value, &bits); err != nil {
		t.Fatalf("keyUsage value does not decode: %v", err)
	}
	// digitalSignature is bit 0, keyEncipherment bit 2.
	if bits.At(0) != 1 || bits.At(2) != 1 {
		t.Errorf("keyUsage bits = %v", bits)
	}
	if bits.At(1) != 0 {
		t.Error("contentCommitment bit should not be set")
	}

	eku := exts[2]
	if !eku.Id.Equal(oidExtKeyUsage) || eku.Critical {
		t.Errorf("extKeyUsage = %+v, want non-critical %v", eku, oidExtKeyUsage)
	}
	var oids []asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(eku.Value, &oids); err != nil {
		t.Fatalf("extKeyUsage value does not decode: %v", err)
	}
	if len(oids) != 1 || !oids[0].Equal(oidEKUServerAuth) {
		t.Errorf("extKeyUsage oids = %v, want serverAuth", oids)
	}
}

func TestU_ExtensionSet_Apply(t *testing.T) {
	set := &ExtensionSet{
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		DNSNames:    []string{"alice"},
	}

	var cert x509.Certificate
	set.Apply(&cert)

	if !cert.BasicConstraintsValid || cert.IsCA {
		t.Error("Apply() should pin a non-CA basicConstraints")
	}
	if cert.KeyUsage != x509.KeyUsageDigitalSignature {
		t.Errorf("KeyUsage = %v", cert.KeyUsage)
	}
	if len(cert.DNSNames) != 1 || cert.DNSNames[0] != "alice" {
		t.Errorf("DNSNames = %v", cert.DNSNames)
	}
}
