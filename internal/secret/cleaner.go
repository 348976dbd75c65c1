package secret

import (
	"errors"
	"sync"
)

// Cleaner is a registry of secret-bearing files and buffers. Register
// everything as soon as it exists; Run destroys all of it and is safe to
// defer on every exit path, including signing failures.
type Cleaner struct {
	mu      sync.Mutex
	paths   []string
	buffers [][]byte
	done    bool
}

// AddFile registers a file for secure removal.
func (c *Cleaner) AddFile(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
}

// AddBuffer registers an in-memory secret for zeroing.
func (c *Cleaner) AddBuffer(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffers = append(c.buffers, b)
}

// Run wipes every registered file and zeroes every registered buffer.
// It runs at most once; later calls are no-ops.
func (c *Cleaner) Run() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return nil
	}
	c.done = true

	var errs []error
	for _, path := range c.paths {
		if err := WipeFile(path); err != nil {
			errs = append(errs, err)
		}
	}
	for _, b := range c.buffers {
		Zero(b)
	}

	return errors.Join(errs...)
}
