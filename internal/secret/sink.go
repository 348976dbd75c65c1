package secret

import (
	"fmt"
	"os"
	"sync"
)

// Sink displays a secret exactly once. Implementations must never route
// secrets through stdout, stderr, or any log stream.
type Sink interface {
	Show(label string, secret []byte) error
}

// TTYSink writes secrets to the controlling terminal device.
type TTYSink struct {
	// Path of the terminal device, /dev/tty when empty.
	Path string
}

// Show writes the labelled secret to the terminal. It fails when no
// controlling terminal exists rather than fall back to stdout.
func (s *TTYSink) Show(label string, secret []byte) error {
	path := s.Path
	if path == "" {
		path = "/dev/tty"
	}

	tty, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("no controlling terminal for secret display: %w", err)
	}
	defer tty.Close()

	if _, err := fmt.Fprintf(tty, "%s: %s\n", label, secret); err != nil {
		return fmt.Errorf("failed to write to terminal: %w", err)
	}
	return nil
}

// CaptureSink records shown secrets in memory, for tests.
type CaptureSink struct {
	mu     sync.Mutex
	shown  map[string]string
	labels []string
}

// Show records the secret under its label.
func (s *CaptureSink) Show(label string, secret []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shown == nil {
		s.shown = make(map[string]string)
	}
	s.shown[label] = string(secret)
	s.labels = append(s.labels, label)
	return nil
}

// Get returns the secret recorded under label.
func (s *CaptureSink) Get(label string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.shown[label]
	return v, ok
}

// Labels returns the labels in display order.
func (s *CaptureSink) Labels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.labels...)
}
