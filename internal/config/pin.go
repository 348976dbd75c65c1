package config

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// ResolvePIN returns the token PIN. Sources in order: PIVCA_PIN, the
// environment variable named by pin_env in the config file, then an
// interactive prompt on the controlling terminal. The prompt never
// echoes and never reads from a redirected stdin.
func (c *Config) ResolvePIN() (string, error) {
	if pin := os.Getenv("PIVCA_PIN"); pin != "" {
		return pin, nil
	}
	if c.PKCS11.PinEnv != "" {
		if pin := os.Getenv(c.PKCS11.PinEnv); pin != "" {
			return pin, nil
		}
	}

	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return "", fmt.Errorf("token PIN not set and no terminal to prompt on (set PIVCA_PIN): %w", err)
	}
	defer tty.Close()

	fd := int(tty.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("token PIN not set and no terminal to prompt on (set PIVCA_PIN)")
	}

	fmt.Fprint(tty, "Token PIN: ")
	pin, err := term.ReadPassword(fd)
	fmt.Fprintln(tty)
	if err != nil {
		return "", fmt.Errorf("failed to read PIN: %w", err)
	}

	return strings.TrimSpace(string(pin)), nil
}
