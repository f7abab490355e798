package util

import "strings"

// NormalizeText lowercases the input, strips punctuation, and collapses
// whitespace, so keyword and synonym matching see a canonical form.
// "Can't breathe!!" and "cant breathe" normalize identically. Decimal points
// inside numbers ("38.5") survive; sentence punctuation does not.
func NormalizeText(s string) string {
	runes := []rune(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(runes))
	lastSpace := true
	for i, r := range runes {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		case r == '.' && i > 0 && i+1 < len(runes) && isDigit(runes[i-1]) && isDigit(runes[i+1]):
			b.WriteRune(r)
			lastSpace = false
		case r == ' ', r == '\t', r == '\n', r == '-', r == '/', r == ',', r == '.', r == ';', r == '!', r == '?':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		default:
			// remaining punctuation (apostrophes included) is dropped entirely
		}
	}
	return strings.TrimSpace(b.String())
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// Tokens splits normalized text into whitespace-separated tokens.
func Tokens(s string) []string {
	return strings.Fields(NormalizeText(s))
}
