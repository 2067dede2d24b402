// Package normalize canonicalizes user input before it is stored.
package normalize

import "strings"

// Email returns a normalized form of an email address suitable for
// storage and comparisons. Normalization currently trims surrounding
// whitespace and lower-cases the address.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// Text returns a chat message as it will be stored. Messages travel as JSON
// strings and are kept verbatim; only invalid UTF-8 sequences and NUL
// characters, which JSONB rejects, are removed.
func Text(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.ReplaceAll(s, "\x00", "")
}
