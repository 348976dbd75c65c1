package profile

import (
	"fmt"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// NormalizeDNSName lowercases a DNS name (RFC 4343) and strips the
// trailing dot of the absolute form.
func NormalizeDNSName(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".")
}

// ValidateDNSName validates a DNS name per RFC 1035/1123:
//   - total length <= 253 characters
//   - each label <= 63 characters, no empty labels
//   - labels contain only alphanumerics and hyphens, and do not start
//     or end with a hyphen
//
// Single-label names like "localhost" are accepted. Wildcards are not:
// issued certificates always name one host. Names that consist of a bare
// public suffix ("com", "co.uk") are rejected as too broad.
func ValidateDNSName(name string) error {
	if name == "" {
		return fmt.Errorf("DNS name cannot be empty")
	}

	name = NormalizeDNSName(name)

	if len(name) > 253 {
		return fmt.Errorf("DNS name too long: %d > 253 characters", len(name))
	}

	labels := strings.Split(name, ".")
	for _, label := range labels {
		if label == "" {
			return fmt.Errorf("empty label in DNS name %q", name)
		}
		if len(label) > 63 {
			return fmt.Errorf("label too long: %q (%d > 63 characters)", label, len(label))
		}
		if label == "*" {
			return fmt.Errorf("wildcard names are not allowed: %q", name)
		}
		if !isValidDNSLabel(label) {
			return fmt.Errorf("invalid DNS label %q: only alphanumerics and interior hyphens are allowed", label)
		}
	}

	if len(labels) > 1 {
		if suffix, icann := publicsuffix.PublicSuffix(name); icann && suffix == name {
			return fmt.Errorf("%q is a public suffix", name)
		}
	}

	return nil
}

// isValidDNSLabel checks a label per RFC 1123: alphanumerics and hyphens,
// no leading or trailing hyphen.
func isValidDNSLabel(label string) bool {
	if len(label) == 0 {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for _, c := range label {
		isLower := c >= 'a' && c <= 'z'
		isUpper := c >= 'A' && c <= 'Z'
		isDigit := c >= '0' && c <= '9'
		if !isLower && !isUpper && !isDigit && c != '-' {
			return false
		}
	}
	return true
}
