package services

import "strings"

// normalizeEmail lowercases and trims an email address. Every lookup, lockout
// key, and invitation address goes through this so that case-varied inputs
// converge on one identity.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
