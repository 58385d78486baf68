// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

// Package cpf validates and formats Brazilian CPF numbers.
//
// A CPF is an 11-digit identifier whose last two digits are mod-11 check
// digits computed over the preceding digits. Sequences of a single repeated
// digit (000.000.000-00, 111.111.111-11, ...) pass the arithmetic but are
// reserved values and rejected.
package cpf

import "strings"

// Normalize strips every non-digit character from s.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Valid reports whether s is a valid CPF. Formatting characters
// (dots, dashes, spaces) are ignored.
func Valid(s string) bool {
	digits := Normalize(s)
	if len(digits) != 11 {
		return false
	}
	if allSame(digits) {
		return false
	}
	if checkDigit(digits, 9) != int(digits[9]-'0') {
		return false
	}
	return checkDigit(digits, 10) == int(digits[10]-'0')
}

// allSame reports whether the string is one repeated character.
func allSame(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// checkDigit computes the mod-11 check digit over digits[0:position].
// The multiplier starts at position+1 and descends to 2.
func checkDigit(digits string, position int) int {
	sum := 0
	for i := 0; i < position; i++ {
		sum += int(digits[i]-'0') * (position + 1 - i)
	}
	rest := sum % 11
	if rest < 2 {
		return 0
	}
	return 11 - rest
}

// Format renders a normalized CPF as 000.000.000-00.
// Returns the input unchanged when it does not hold 11 digits.
func Format(s string) string {
	digits := Normalize(s)
	if len(digits) != 11 {
		return s
	}
	return digits[0:3] + "." + digits[3:6] + "." + digits[6:9] + "-" + digits[9:11]
}

// Mask hides all but the check digits, for logs and exports that must not
// carry the full document number.
func Mask(s string) string {
	digits := Normalize(s)
	if len(digits) != 11 {
		return "***"
	}
	return "***.***.***-" + digits[9:11]
}
