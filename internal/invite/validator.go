// Package invite gates registration behind invite codes while sign-ups are
// closed to the public.
package invite

import (
	"crypto/subtle"
	"strings"
)

// Validator checks registration invite codes held in memory.
type Validator struct {
	enabled bool
	codes   [][]byte
}

// New creates a validator. Codes are trimmed, upper-cased and deduplicated.
// A disabled validator accepts every code.
func New(enabled bool, codes []string) *Validator {
	seen := make(map[string]bool)
	v := &Validator{enabled: enabled}
	for _, code := range codes {
		norm := normalize(code)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		v.codes = append(v.codes, []byte(norm))
	}
	return v
}

// IsEnabled reports whether registration requires a code.
func (v *Validator) IsEnabled() bool {
	return v.enabled
}

// ValidateCode reports whether code may be used to register.
//
// Every stored code is compared in constant time so the response time does
// not depend on which code matched.
func (v *Validator) ValidateCode(code string) bool {
	if !v.enabled {
		return true
	}

	candidate := []byte(normalize(code))
	if len(candidate) == 0 {
		return false
	}

	found := 0
	for _, valid := range v.codes {
		found |= subtle.ConstantTimeCompare(candidate, valid)
	}
	return found == 1
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
