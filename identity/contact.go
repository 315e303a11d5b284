package identity

import (
	"regexp"
	"strings"
)

// PhoneDigits is the exact number of digits a subscriber phone number carries.
const PhoneDigits = 10

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizePhone strips every non-digit character from s.
func NormalizePhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// ValidPhone normalizes s and reports whether the result is exactly
// [PhoneDigits] digits long.
func ValidPhone(s string) (string, bool) {
	phone := NormalizePhone(s)
	return phone, len(phone) == PhoneDigits
}

// ValidEmail reports whether s looks like a deliverable address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}
