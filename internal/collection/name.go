package collection

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"

	"docstack/internal/models"
)

// Internal names back the per-collection vector index, so they must satisfy
// its naming constraints: 3-63 chars, alphanumeric/underscore/hyphen only,
// alphanumeric at both ends, no consecutive periods, and not something that
// parses as an IPv4 address.
const (
	internalNameLength   = 24
	internalNameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	internalNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{1,61}[a-zA-Z0-9]$`)
	ipv4Pattern         = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
)

// GenerateInternalName produces a fresh internal name from a fixed lowercase
// alphanumeric alphabet. The generated form trivially satisfies every naming
// constraint; ValidateInternalName exists for names arriving from elsewhere.
func GenerateInternalName() (string, error) {
	buf := make([]byte, internalNameLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("unable to generate internal name: %w", err)
	}
	for i, b := range buf {
		buf[i] = internalNameAlphabet[int(b)%len(internalNameAlphabet)]
	}
	return "c" + string(buf), nil
}

// ValidateInternalName checks a name against the vector-index constraints.
func ValidateInternalName(name string) error {
	if !internalNamePattern.MatchString(name) {
		return fmt.Errorf("internal name '%s' must be 3-63 alphanumeric/underscore/hyphen chars with alphanumeric ends: %w", name, models.ErrInvalidArgument)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("internal name '%s' must not contain consecutive periods: %w", name, models.ErrInvalidArgument)
	}
	if ipv4Pattern.MatchString(name) {
		return fmt.Errorf("internal name '%s' must not look like an IPv4 address: %w", name, models.ErrInvalidArgument)
	}
	return nil
}
