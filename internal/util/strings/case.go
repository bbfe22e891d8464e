package strings

import (
	"strings"
	"unicode"
)

// SplitWords splits a CamelCase identifier into its words.
// Handles acronyms and digits (HPLCController -> HPLC Controller, Pump2Mode -> Pump2 Mode)
func SplitWords(s string) []string {
	var words []string
	var current strings.Builder
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			// A word starts at an uppercase letter if:
			// 1. Previous char is lowercase or a digit
			// 2. Next char is lowercase (end of an acronym like HPLCController)
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				words = append(words, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return words
}

// DisplayName turns an identifier into a display name (PumpController -> Pump Controller)
func DisplayName(identifier string) string {
	return strings.Join(SplitWords(identifier), " ")
}
