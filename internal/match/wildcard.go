// internal/match/wildcard.go
package match

import "strings"

/*
 * Wildcard comparison for filter values.
 *
 * A single marker, "%", may lead and/or trail the expected pattern:
 *   - "%x%" (length >= 2): value contains x
 *   - "x%":  value starts with x
 *   - "%x":  value ends with x
 *   - otherwise exact equality
 *
 * Plain substring tests only; no regex, no case folding, no trimming.
 * A lone "%" takes the prefix rule with an empty prefix and matches anything.
 */

// Wildcard is the marker recognised at either end of a pattern.
const Wildcard = "%"

// MatchWildcard reports whether value satisfies pattern.
func MatchWildcard(pattern, value string) bool {
	startsW := strings.HasPrefix(pattern, Wildcard)
	endsW := strings.HasSuffix(pattern, Wildcard)

	switch {
	case startsW && endsW && len(pattern) >= 2:
		return strings.Contains(value, pattern[1:len(pattern)-1])
	case endsW:
		return strings.HasPrefix(value, pattern[:len(pattern)-1])
	case startsW:
		return strings.HasSuffix(value, pattern[1:])
	default:
		return pattern == value
	}
}

// MatchNullable applies MatchWildcard with null semantics: two nils match,
// exactly one nil never does.
func MatchNullable(pattern, value *string) bool {
	if pattern == nil || value == nil {
		return pattern == nil && value == nil
	}
	return MatchWildcard(*pattern, *value)
}
