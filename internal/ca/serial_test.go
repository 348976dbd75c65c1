package ca

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestU_FileSerialStore_FirstUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.srl")
	store := &FileSerialStore{Path: path}

	serial, err := store.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if serial.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("first serial = %v, want 1", serial)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(data)); got != "02" {
		t.Errorf("serial file = %q, want 02", got)
	}
}

func TestU_FileSerialStore_Monotonic(t *testing.T) {
	store := &FileSerialStore{Path: filepath.Join(t.TempDir(), "ca.srl")}

	var last *big.Int
	for i := 0; i < 5; i++ {
		serial, err := store.Next()
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		if last != nil && serial.Cmp(last) <= 0 {
			t.Fatalf("serial %v not greater than %v", serial, last)
		}
		last = serial
	}
	if last.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("fifth serial = %v, want 5", last)
	}
}

func TestU_FileSerialStore_Existing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.srl")
	if err := os.WriteFile(path, []byte("0FFE\n"), 0644); err != nil {
		t.Fatal(err)
	}
	store := &FileSerialStore{Path: path}

	serial, err := store.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if serial.Cmp(big.NewInt(0x0FFE)) != 0 {
		t.Errorf("serial = %v, want 0x0FFE", serial)
	}

	data, _ := os.ReadFile(path)
	if got := strings.TrimSpace(string(data)); got != "0fff" {
		t.Errorf("serial file = %q, want 0fff", got)
	}
}

func TestU_FileSerialStore_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.srl")
	if err := os.WriteFile(path, []byte("not-hex\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := (&FileSerialStore{Path: path}).Next(); err == nil {
		t.Error("corrupt serial file should error")
	}
}

func TestU_IncrementSerial(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"[Unit] incrementSerial: simple", []byte{0x01}, []byte{0x02}},
		{"[Unit] incrementSerial: carry", []byte{0x01, 0xFF}, []byte{0x02, 0x00}},
		{"[Unit] incrementSerial: overflow grows", []byte{0xFF, 0xFF}, []byte{0x01, 0x00, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := incrementSerial(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("incrementSerial(%x) = %x, want %x", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("incrementSerial(%x) = %x, want %x", tt.in, got, tt.want)
				}
			}
		})
	}
}
