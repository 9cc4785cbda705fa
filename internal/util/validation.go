package util

import (
	"regexp"
)

var (
	lockIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)
	tokenRegex  = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)
)

// IsNumericCode reports whether s is exactly n ASCII digits.
func IsNumericCode(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func IsValidLockID(s string) bool {
	return lockIDRegex.MatchString(s)
}

// IsValidInviteToken checks the base64url shape of an invite token.
func IsValidInviteToken(s string) bool {
	return tokenRegex.MatchString(s)
}
