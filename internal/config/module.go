package config

import (
	"fmt"
	"os"

	"github.com/remiblancher/pivca/internal/pki"
)

// wellKnownModules is the ordered search list for the PKCS#11 provider
// library: YubiKey PIV (ykcs11) locations first, then OpenSC.
var wellKnownModules = []string{
	"/usr/local/lib/libykcs11.so",
	"/usr/lib/x86_64-linux-gnu/libykcs11.so",
	"/usr/lib/libykcs11.so",
	"/opt/homebrew/lib/libykcs11.dylib",
	"/usr/local/lib/libykcs11.dylib",
	"/usr/lib/x86_64-linux-gnu/opensc-pkcs11.so",
	"/usr/local/lib/opensc-pkcs11.so",
	"/usr/lib/opensc-pkcs11.so",
	"/Library/OpenSC/lib/opensc-pkcs11.so",
}

// ResolveModule returns the PKCS#11 provider path, discovering it over
// the well-known list when not configured. A configured path that does
// not exist, or an empty discovery, is a missing dependency.
func (c *Config) ResolveModule() (string, error) {
	if c.PKCS11.Module != "" {
		if _, err := os.Stat(c.PKCS11.Module); err != nil {
			return "", fmt.Errorf("%w: PKCS#11 module %s not found", pki.ErrMissingDependency, c.PKCS11.Module)
		}
		return c.PKCS11.Module, nil
	}

	for _, path := range wellKnownModules {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: no PKCS#11 module found (install ykcs11 or OpenSC, or set --module)", pki.ErrMissingDependency)
}
