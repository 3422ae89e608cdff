package util

import (
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

const (
	minNumberDigits = 8
	maxNumberDigits = 15
)

// NormalizeNumber reduces a phone number to its digits (E.164 without the
// plus sign). Returns false if what remains is not a plausible number.
func NormalizeNumber(number string) (string, bool) {
	digits := nonDigits.ReplaceAllString(strings.TrimSpace(number), "")
	if len(digits) < minNumberDigits || len(digits) > maxNumberDigits {
		return "", false
	}
	return digits, true
}

// NormalizeCode trims surrounding whitespace from a user-supplied code.
func NormalizeCode(code string) string {
	return strings.TrimSpace(code)
}
