package domain

import (
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-f]{1,64}$`)

// NormalizeAddress lowercases and trims an address for equality checks.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ValidateAddress normalizes addr and checks it is a hex felt.
func ValidateAddress(addr string) (string, error) {
	a := NormalizeAddress(addr)
	if !addressPattern.MatchString(a) {
		return "", ErrInvalidAddress
	}
	return a, nil
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}

// ShortAddress renders 0x1234...abcd for display.
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
