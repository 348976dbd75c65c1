package ca

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"strings"
)

// SerialStore allocates monotonically increasing certificate serial
// numbers for one CA.
type SerialStore interface {
	// Next returns the current serial and advances the counter.
	Next() (*big.Int, error)
}

// FileSerialStore keeps the counter in a hex-encoded file, compatible
// with openssl's .srl convention. The file is created holding "01" on
// first use. Concurrent processes are not coordinated; one operator per
// CA is assumed.
type FileSerialStore struct {
	Path string
}

var _ SerialStore = (*FileSerialStore)(nil)

// Next reads the current serial, writes back the incremented value, and
// returns the value read.
func (s *FileSerialStore) Next() (*big.Int, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		data = []byte("01\n")
		if err := os.WriteFile(s.Path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to create serial file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read serial file: %w", err)
	}

	serialHex := strings.TrimSpace(string(data))
	serial, err := hex.DecodeString(serialHex)
	if err != nil {
		return nil, fmt.Errorf("failed to parse serial file %s: %w", s.Path, err)
	}
	if len(serial) == 0 {
		return nil, fmt.Errorf("serial file %s is empty", s.Path)
	}

	next := incrementSerial(serial)
	if err := os.WriteFile(s.Path, []byte(hex.EncodeToString(next)+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("failed to update serial file: %w", err)
	}

	return new(big.Int).SetBytes(serial), nil
}

// incrementSerial increments a big-endian byte slice by 1.
func incrementSerial(serial []byte) []byte {
	result := make([]byte, len(serial))
	copy(result, serial)

	for i := len(result) - 1; i >= 0; i-- {
		result[i]++
		if result[i] != 0 {
			return result
		}
	}

	// Overflow, prepend a byte.
	return append([]byte{1}, result...)
}
