package domain

import "strings"

// NormalizeOwner returns the canonical identity used for owner comparisons.
func NormalizeOwner(owner string) string {
	return strings.ToLower(strings.TrimSpace(owner))
}

// SameOwner compares two identities case-insensitively.
func SameOwner(a, b string) bool {
	return NormalizeOwner(a) == NormalizeOwner(b)
}
