// Package secret handles the lifecycle of passphrases and key material:
// generation, one-shot display, and guaranteed destruction.
package secret

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Passphrase returns n random bytes from the system CSPRNG, hex encoded
// (2n characters).
func Passphrase(n int) ([]byte, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	out := make([]byte, hex.EncodedLen(n))
	hex.Encode(out, raw)
	Zero(raw)
	return out, nil
}

// Zero overwrites a buffer in place. Best effort: the runtime may have
// copied the data elsewhere.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
