// Package cryptoutil provides the key and signing primitives for the
// issuance pipeline. Leaf keys are generated in software; the CA key is
// reached through PKCS#11 and never leaves its token.
package cryptoutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"strconv"
	"strings"
)

// AlgorithmID identifies a key algorithm.
type AlgorithmID string

// Supported algorithms.
const (
	AlgRSA2048   AlgorithmID = "rsa-2048"
	AlgRSA3072   AlgorithmID = "rsa-3072"
	AlgRSA4096   AlgorithmID = "rsa-4096"
	AlgECDSAP256 AlgorithmID = "ecdsa-p256"
	AlgECDSAP384 AlgorithmID = "ecdsa-p384"
)

// algorithmInfo holds metadata about an algorithm.
type algorithmInfo struct {
	RSABits    int
	Curve      elliptic.Curve
	Hash       crypto.Hash
	X509SigAlg x509.SignatureAlgorithm
}

// algorithms maps AlgorithmID to its metadata. The digest is matched to
// key strength: SHA-256 for RSA and P-256, SHA-384 for P-384.
var algorithms = map[AlgorithmID]algorithmInfo{
	AlgRSA2048:   {RSABits: 2048, Hash: crypto.SHA256, X509SigAlg: x509.SHA256WithRSA},
	AlgRSA3072:   {RSABits: 3072, Hash: crypto.SHA256, X509SigAlg: x509.SHA256WithRSA},
	AlgRSA4096:   {RSABits: 4096, Hash: crypto.SHA256, X509SigAlg: x509.SHA256WithRSA},
	AlgECDSAP256: {Curve: elliptic.P256(), Hash: crypto.SHA256, X509SigAlg: x509.ECDSAWithSHA256},
	AlgECDSAP384: {Curve: elliptic.P384(), Hash: crypto.SHA384, X509SigAlg: x509.ECDSAWithSHA384},
}

// IsValid returns true if the algorithm is supported.
func (a AlgorithmID) IsValid() bool {
	_, ok := algorithms[a]
	return ok
}

// IsRSA returns true for RSA algorithms.
func (a AlgorithmID) IsRSA() bool {
	return strings.HasPrefix(string(a), "rsa-")
}

// Hash returns the digest matched to the algorithm's key strength.
func (a AlgorithmID) Hash() crypto.Hash {
	return algorithms[a].Hash
}

// X509SignatureAlgorithm returns the signature algorithm a key of this
// type signs certificates with.
func (a AlgorithmID) X509SignatureAlgorithm() x509.SignatureAlgorithm {
	return algorithms[a].X509SigAlg
}

// RSABits returns the modulus size for RSA algorithms, 0 otherwise.
func (a AlgorithmID) RSABits() int {
	return algorithms[a].RSABits
}

// Curve returns the elliptic curve for ECDSA algorithms, nil otherwise.
func (a AlgorithmID) Curve() elliptic.Curve {
	return algorithms[a].Curve
}

// ParseAlgorithm resolves a user-supplied algorithm parameter.
// Accepted forms: a canonical AlgorithmID ("rsa-2048", "ecdsa-p384"),
// a bare RSA bit size ("2048"), or a curve name ("secp384r1",
// "prime256v1"). An empty string resolves to the given default.
func ParseAlgorithm(s string, def AlgorithmID) (AlgorithmID, error) {
	if s == "" {
		return def, nil
	}

	switch strings.ToLower(s) {
	case "secp256r1", "prime256v1", "p-256", "p256":
		return AlgECDSAP256, nil
	case "secp384r1", "p-384", "p384":
		return AlgECDSAP384, nil
	case "ec", "ecc", "ecdsa":
		// An ECC request without a named curve gets the stronger default.
		return AlgECDSAP384, nil
	case "rsa":
		return AlgRSA2048, nil
	}

	if alg := AlgorithmID(strings.ToLower(s)); alg.IsValid() {
		return alg, nil
	}

	// A bare numeric parameter selects an RSA bit size.
	bits, err := strconv.Atoi(s)
	if err != nil {
		return "", fmt.Errorf("%q is not a known algorithm, curve, or RSA key size", s)
	}
	switch bits {
	case 2048:
		return AlgRSA2048, nil
	case 3072:
		return AlgRSA3072, nil
	case 4096:
		return AlgRSA4096, nil
	default:
		return "", fmt.Errorf("unsupported RSA key size: %d (use 2048, 3072, or 4096)", bits)
	}
}

// AlgorithmForPublicKey returns the AlgorithmID matching an already parsed
// public key, used to derive the digest for a CA key discovered on a token.
func AlgorithmForPublicKey(pub crypto.PublicKey) (AlgorithmID, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		switch bits := k.N.BitLen(); bits {
		case 2048:
			return AlgRSA2048, nil
		case 3072:
			return AlgRSA3072, nil
		case 4096:
			return AlgRSA4096, nil
		default:
			return "", fmt.Errorf("unsupported RSA modulus size: %d bits", bits)
		}
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P256():
			return AlgECDSAP256, nil
		case elliptic.P384():
			return AlgECDSAP384, nil
		default:
			return "", fmt.Errorf("unsupported curve: %s", k.Curve.Params().Name)
		}
	default:
		return "", fmt.Errorf("unrecognized public key type %T", pub)
	}
}
