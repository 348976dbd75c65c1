package secret

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// WipeFile overwrites a file with random bytes, syncs, and removes it.
// If the overwrite fails the file is still removed; that weaker cleanup
// leaves the old blocks recoverable on some filesystems.
func WipeFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := overwriteFile(path, info.Size()); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			return fmt.Errorf("failed to wipe and remove %s: %v, %w", path, err, rmErr)
		}
		return nil
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

func overwriteFile(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	junk := make([]byte, size)
	if _, err := rand.Read(junk); err != nil {
		return err
	}
	if _, err := f.WriteAt(junk, 0); err != nil {
		return err
	}
	return f.Sync()
}
