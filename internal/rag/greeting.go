package rag

import "strings"

var greetings = []string{"hi", "hello", "hey", "greetings"}

// IsGreeting reports whether the query is a greeting: one of the greeting words,
// alone or followed by a space or comma. Matching is case-insensitive.
// Surrounding whitespace is ignored only for the bare word; the prefix forms
// must start the query.
func IsGreeting(query string) bool {
	q := strings.ToLower(query)
	bare := strings.TrimSpace(q)
	for _, g := range greetings {
		if bare == g || strings.HasPrefix(q, g+" ") || strings.HasPrefix(q, g+",") {
			return true
		}
	}
	return false
}
