package util

import (
	"unicode/utf8"

	"github.com/rivo/uniseg"
	"golang.org/x/text/unicode/norm"
)

// Returns a copy of the input with duplicates removed, preserving the order of first occurrence.
func DedupeStrings(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		if !seen[v] {
			out = append(out, v)
			seen[v] = true
		}
	}
	return out
}

// Truncates a string to at most n runes. Never splits a multi-byte character.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Truncates a string to at most n user-perceived characters (grapheme clusters). Emoji sequences and combining marks stay intact.
func TruncateGraphemes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	gr := uniseg.NewGraphemes(s)
	count := 0
	for gr.Next() {
		if count == n {
			start, _ := gr.Positions()
			return s[:start]
		}
		count++
	}
	return s
}

// Unicode NFC normalization, so visually identical text has identical bytes.
func NormalizeText(s string) string {
	return norm.NFC.String(s)
}
