// internal/match/evaluate.go
package match

import (
	"fmt"

	"github.com/solatis/busprobe/internal/types"
)

/*
 * Per-document filter evaluation.
 *
 * Evaluation flow, per filter:
 *   1. Resolve the pre-parsed path against the document body
 *   2. Render the resolved value to text
 *   3. Compare with the wildcard matcher
 *   4. Classify as matched, or unmatched with Expected/Actual detail
 *
 * Every filter is evaluated (no short-circuit) so partial matches carry a
 * complete breakdown for diagnostics.
 */

// Evaluate checks every filter in fs against doc.
func Evaluate(doc *types.Document, fs *FilterSet) MatchResult {
	result := MatchResult{Document: doc}

	var body any
	if doc != nil {
		body = doc.Body
	}

	for _, f := range fs.filters {
		resolved := ResolveSegments(body, f.segs)
		if !resolved.Found {
			result.Unmatched = append(result.Unmatched, f.WithMismatch(notFound(f.Path)))
			continue
		}

		actual := Text(resolved.Value)
		if MatchWildcard(f.Pattern, actual) {
			result.Matched = append(result.Matched, f)
		} else {
			result.Unmatched = append(result.Unmatched, f.WithMismatch(actual))
		}
	}

	return result
}

func notFound(path string) string {
	return fmt.Sprintf("Node '%s' not found", path)
}
