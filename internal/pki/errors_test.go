package pki

import (
	"errors"
	"fmt"
	"testing"
)

func TestU_ExitCode_Mapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"[Unit] ExitCode: nil", nil, 0},
		{"[Unit] ExitCode: invalid input", ErrInvalidInput, 2},
		{"[Unit] ExitCode: wrapped invalid input", fmt.Errorf("%w: bad cn", ErrInvalidInput), 2},
		{"[Unit] ExitCode: missing dependency", ErrMissingDependency, 3},
		{"[Unit] ExitCode: missing CA", fmt.Errorf("%w: /tmp/ca.crt", ErrMissingCA), 4},
		{"[Unit] ExitCode: signing failure", ErrSigningFailure, 1},
		{"[Unit] ExitCode: sign error", NewSignError("sign", errors.New("token gone")), 1},
		{"[Unit] ExitCode: generic error", errors.New("disk full"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestU_SignError_Is(t *testing.T) {
	err := NewSignError("open-session", errors.New("CKR_PIN_INCORRECT"))

	if !errors.Is(err, ErrSigningFailure) {
		t.Error("SignError should match ErrSigningFailure")
	}
	if errors.Is(err, ErrInvalidInput) {
		t.Error("SignError should not match ErrInvalidInput")
	}

	var signErr *SignError
	if !errors.As(err, &signErr) {
		t.Fatal("errors.As should extract *SignError")
	}
	if signErr.Op != "open-session" {
		t.Errorf("Op = %q, want open-session", signErr.Op)
	}
}

func TestU_SignError_Message(t *testing.T) {
	withSerial := &SignError{Op: "sign", Serial: "0x0A", Err: errors.New("boom")}
	if got := withSerial.Error(); got != "signer sign [0x0A]: boom" {
		t.Errorf("Error() = %q", got)
	}

	noSerial := NewSignError("find-key", errors.New("not found"))
	if got := noSerial.Error(); got != "signer find-key: not found" {
		t.Errorf("Error() = %q", got)
	}
}
