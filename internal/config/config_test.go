package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/remiblancher/pivca/internal/pki"
)

func TestU_Load_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ValidityDays != DefaultValidityDays {
		t.Errorf("ValidityDays = %d, want %d", cfg.ValidityDays, DefaultValidityDays)
	}
	if cfg.PKCS11.KeyLabel != DefaultKeyLabel {
		t.Errorf("KeyLabel = %q, want %q", cfg.PKCS11.KeyLabel, DefaultKeyLabel)
	}
}

func TestU_Load_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pivca.yaml")
	content := `
ca_cert: /etc/pivca/ca.crt
validity_days: 365
out_dir: /var/lib/pivca
algorithm: ecdsa-p384
audit_log: /var/log/pivca.jsonl
pkcs11:
  module: /usr/lib/libykcs11.so
  token: "YubiKey PIV #123"
  key_label: piv-ca
  pin_env: YK_PIN
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CACert != "/etc/pivca/ca.crt" {
		t.Errorf("CACert = %q", cfg.CACert)
	}
	if cfg.ValidityDays != 365 {
		t.Errorf("ValidityDays = %d", cfg.ValidityDays)
	}
	if cfg.PKCS11.Token != "YubiKey PIV #123" {
		t.Errorf("Token = %q", cfg.PKCS11.Token)
	}
	if cfg.PKCS11.KeyLabel != "piv-ca" {
		t.Errorf("KeyLabel = %q", cfg.PKCS11.KeyLabel)
	}
	if cfg.PKCS11.PinEnv != "YK_PIN" {
		t.Errorf("PinEnv = %q", cfg.PKCS11.PinEnv)
	}
}

func TestU_Load_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, pki.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestU_ApplyEnv_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pivca.yaml")
	if err := os.WriteFile(path, []byte("ca_cert: /from/file.crt\nvalidity_days: 365\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PIVCA_CA_CERT", "/from/env.crt")
	t.Setenv("PIVCA_VALIDITY_DAYS", "30")
	t.Setenv("PIVCA_CA_KEY_LABEL", "env-key")
	t.Setenv("PIVCA_PRINT_KEY", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.CACert != "/from/env.crt" {
		t.Errorf("CACert = %q, environment should win over the file", cfg.CACert)
	}
	if cfg.ValidityDays != 30 {
		t.Errorf("ValidityDays = %d, want 30", cfg.ValidityDays)
	}
	if cfg.PKCS11.KeyLabel != "env-key" {
		t.Errorf("KeyLabel = %q", cfg.PKCS11.KeyLabel)
	}
	if !cfg.PrintKey {
		t.Error("PrintKey should be set from the environment")
	}
}

func TestU_ApplyEnv_BadValidity(t *testing.T) {
	t.Setenv("PIVCA_VALIDITY_DAYS", "soon")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.ApplyEnv(); !errors.Is(err, pki.ErrInvalidInput) {
		t.Errorf("ApplyEnv() error = %v, want ErrInvalidInput", err)
	}
}

func TestU_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"[Unit] Validate: complete config", func(c *Config) {}, false},
		{"[Unit] Validate: missing CA cert", func(c *Config) { c.CACert = "" }, true},
		{"[Unit] Validate: zero validity", func(c *Config) { c.ValidityDays = 0 }, true},
		{"[Unit] Validate: negative validity", func(c *Config) { c.ValidityDays = -1 }, true},
		{"[Unit] Validate: no key label or id", func(c *Config) {
			c.PKCS11.KeyLabel = ""
			c.PKCS11.KeyID = ""
		}, true},
		{"[Unit] Validate: key id only", func(c *Config) {
			c.PKCS11.KeyLabel = ""
			c.PKCS11.KeyID = "9c"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatal(err)
			}
			cfg.CACert = "/etc/pivca/ca.crt"
			tt.mutate(cfg)

			err = cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, pki.ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestU_CheckCACert(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "ca.crt")
	if err := os.WriteFile(present, []byte("pem"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{CACert: present}
	if err := cfg.CheckCACert(); err != nil {
		t.Errorf("CheckCACert() error = %v", err)
	}

	cfg.CACert = filepath.Join(dir, "absent.crt")
	if err := cfg.CheckCACert(); !errors.Is(err, pki.ErrMissingCA) {
		t.Errorf("CheckCACert() error = %v, want ErrMissingCA", err)
	}
}

func TestU_ResolveModule(t *testing.T) {
	dir := t.TempDir()
	module := filepath.Join(dir, "libykcs11.so")
	if err := os.WriteFile(module, []byte{0x7f, 'E', 'L', 'F'}, 0755); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{}
	cfg.PKCS11.Module = module
	got, err := cfg.ResolveModule()
	if err != nil {
		t.Fatalf("ResolveModule() error = %v", err)
	}
	if got != module {
		t.Errorf("ResolveModule() = %q, want %q", got, module)
	}

	cfg.PKCS11.Module = filepath.Join(dir, "missing.so")
	if _, err := cfg.ResolveModule(); !errors.Is(err, pki.ErrMissingDependency) {
		t.Errorf("ResolveModule() error = %v, want ErrMissingDependency", err)
	}
}

func TestU_ResolvePIN_FromEnv(t *testing.T) {
	t.Setenv("PIVCA_PIN", "123456")

	cfg := &Config{}
	pin, err := cfg.ResolvePIN()
	if err != nil {
		t.Fatalf("ResolvePIN() error = %v", err)
	}
	if pin != "123456" {
		t.Errorf("pin = %q", pin)
	}
}

func TestU_ResolvePIN_FromNamedEnv(t *testing.T) {
	t.Setenv("PIVCA_PIN", "")
	t.Setenv("YK_PIN", "654321")

	cfg := &Config{}
	cfg.PKCS11.PinEnv = "YK_PIN"
	pin, err := cfg.ResolvePIN()
	if err != nil {
		t.Fatalf("ResolvePIN() error = %v", err)
	}
	if pin != "654321" {
		t.Errorf("pin = %q", pin)
	}
}
