package search

import (
	"strings"
	"unicode"
)

// SplitName breaks an identifier into lowercase terms. Erlang function and
// record names are snake_case; variables and macros lean on camelCase and
// SCREAMING_CASE, so all three are handled.
func SplitName(name string) []string {
	var terms []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			terms = append(terms, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '/' || r == ':' || r == '.':
			flush()
		case unicode.IsUpper(r):
			// camelCase boundary: lower followed by upper, or upper
			// followed by lower after an upper run (HTTPServer).
			if i > 0 && (unicode.IsLower(runes[i-1]) ||
				(unicode.IsUpper(runes[i-1]) && i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				flush()
			}
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return terms
}
