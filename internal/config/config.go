// Package config resolves the issuance parameters from their three
// sources, in precedence order: command-line flags, PIVCA_* environment
// variables, and the optional YAML config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/remiblancher/pivca/internal/pki"
)

// Defaults.
const (
	DefaultValidityDays = 1825
	DefaultKeyLabel     = "ca-key"
)

// Config is the fully resolved configuration for one issuance run.
// Nothing else in the program reads the environment.
type Config struct {
	// CACert is the path to the CA certificate PEM file.
	CACert string `yaml:"ca_cert"`

	// ValidityDays is the certificate lifetime in days.
	ValidityDays int `yaml:"validity_days"`

	// OutDir is the parent directory for per-identity output directories.
	// Empty means the current directory.
	OutDir string `yaml:"out_dir"`

	// Algorithm is the default key algorithm parameter.
	Algorithm string `yaml:"algorithm"`

	// PrintKey displays the decrypted private key on the terminal.
	PrintKey bool `yaml:"print_key"`

	// AuditLog is the path of the JSONL audit log, empty to disable.
	AuditLog string `yaml:"audit_log"`

	PKCS11 PKCS11Settings `yaml:"pkcs11"`
}

// PKCS11Settings holds the PKCS#11 provider configuration.
type PKCS11Settings struct {
	// Module is the path to the PKCS#11 library (.so/.dylib/.dll).
	// Empty triggers discovery over the well-known path list.
	Module string `yaml:"module"`

	// Token identifies the token by label.
	Token string `yaml:"token"`

	// TokenSerial identifies the token by serial number (more precise).
	TokenSerial string `yaml:"token_serial"`

	// Slot identifies the token by slot ID (less portable).
	Slot *uint `yaml:"slot"`

	// KeyLabel is the CKA_LABEL of the CA private key.
	KeyLabel string `yaml:"key_label"`

	// KeyID is the CKA_ID of the CA private key, hex encoded.
	KeyID string `yaml:"key_id"`

	// PinEnv is the name of the environment variable holding the PIN.
	PinEnv string `yaml:"pin_env"`
}

// Load reads a YAML config file and applies defaults. A missing file is
// not an error when path is empty (no --config given).
func Load(path string) (*Config, error) {
	cfg := &Config{
		ValidityDays: DefaultValidityDays,
	}
	cfg.PKCS11.KeyLabel = DefaultKeyLabel

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read config file: %v", pki.ErrInvalidInput, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config file %s: %v", pki.ErrInvalidInput, path, err)
		}
	}

	return cfg, nil
}

// ApplyEnv overlays PIVCA_* environment variables onto the config.
// Flags are applied afterwards by the command layer and win over both.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("PIVCA_CA_CERT"); v != "" {
		c.CACert = v
	}
	if v := os.Getenv("PIVCA_OUT_DIR"); v != "" {
		c.OutDir = v
	}
	if v := os.Getenv("PIVCA_ALGORITHM"); v != "" {
		c.Algorithm = v
	}
	if v := os.Getenv("PIVCA_PKCS11_MODULE"); v != "" {
		c.PKCS11.Module = v
	}
	if v := os.Getenv("PIVCA_CA_KEY_LABEL"); v != "" {
		c.PKCS11.KeyLabel = v
	}
	if v := os.Getenv("PIVCA_AUDIT_LOG"); v != "" {
		c.AuditLog = v
	}
	if v := os.Getenv("PIVCA_PRINT_KEY"); v != "" {
		c.PrintKey = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("PIVCA_VALIDITY_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			return fmt.Errorf("%w: PIVCA_VALIDITY_DAYS: %q is not a positive integer", pki.ErrInvalidInput, v)
		}
		c.ValidityDays = days
	}
	return nil
}

// Validate checks the resolved configuration before any side effect.
func (c *Config) Validate() error {
	if c.CACert == "" {
		return fmt.Errorf("%w: CA certificate path is required (--ca-cert or PIVCA_CA_CERT)", pki.ErrInvalidInput)
	}
	if c.ValidityDays <= 0 {
		return fmt.Errorf("%w: validity must be a positive number of days", pki.ErrInvalidInput)
	}
	if c.PKCS11.KeyLabel == "" && c.PKCS11.KeyID == "" {
		return fmt.Errorf("%w: one of the CA key label or key id is required", pki.ErrInvalidInput)
	}
	return nil
}

// CheckCACert verifies the CA certificate file exists.
func (c *Config) CheckCACert() error {
	if _, err := os.Stat(c.CACert); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", pki.ErrMissingCA, c.CACert)
	} else if err != nil {
		return fmt.Errorf("failed to stat CA certificate: %w", err)
	}
	return nil
}
