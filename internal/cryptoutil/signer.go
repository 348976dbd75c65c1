package cryptoutil

import "crypto"

// Signer extends crypto.Signer with algorithm metadata. It is the common
// interface over software keys and PKCS#11 token keys.
type Signer interface {
	crypto.Signer

	// Algorithm returns the algorithm identifier for this signer.
	Algorithm() AlgorithmID
}
