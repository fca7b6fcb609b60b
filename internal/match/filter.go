// internal/match/filter.go
package match

import (
	"fmt"
	"sort"
	"strings"

	"github.com/solatis/busprobe/internal/types"
)

/*
 * Declarative filter model.
 *
 * A Filter is one (path, expected pattern) assertion. A FilterSet is the
 * ordered list of filters making up one await, plus the partial matches
 * observed while polling. MatchResult is the outcome of evaluating a
 * FilterSet against one document.
 *
 * Filters are values: WithMismatch returns a copy carrying Expected/Actual
 * detail and never touches the original. A FilterSet accumulates partial
 * matches across poll ticks and is owned by exactly one await call; it is
 * not safe for concurrent use.
 */

// Mismatch carries diagnostic detail for an unmatched filter.
type Mismatch struct {
	Expected string
	Actual   string
}

// Filter is a single (path, expected pattern) assertion.
type Filter struct {
	Path     string
	Pattern  string
	Mismatch *Mismatch // set only on filters returned in MatchResult.Unmatched

	segs []types.PathSegment
}

// NewFilter parses path and returns an immutable filter.
func NewFilter(path, pattern string) (Filter, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return Filter{}, err
	}
	return Filter{Path: path, Pattern: pattern, segs: segs}, nil
}

// WithMismatch returns a copy of f carrying Expected=f.Pattern and actual.
func (f Filter) WithMismatch(actual string) Filter {
	f.Mismatch = &Mismatch{Expected: f.Pattern, Actual: actual}
	return f
}

// FilterSet is an ordered collection of filters plus partial-match history.
type FilterSet struct {
	filters  []Filter
	partials []MatchResult
}

// NewFilterSet returns a FilterSet holding filters in order.
func NewFilterSet(filters ...Filter) *FilterSet {
	return &FilterSet{filters: append([]Filter(nil), filters...)}
}

// Add appends a filter. Order is kept for display only.
func (fs *FilterSet) Add(path, pattern string) error {
	f, err := NewFilter(path, pattern)
	if err != nil {
		return err
	}
	fs.filters = append(fs.filters, f)
	return nil
}

// Filters returns a copy of the filters in declaration order.
func (fs *FilterSet) Filters() []Filter {
	return append([]Filter(nil), fs.filters...)
}

// Len returns the number of filters.
func (fs *FilterSet) Len() int {
	return len(fs.filters)
}

// RecordPartial keeps r for diagnostics when it matched at least one filter
// without matching all of them. A document is recorded at most once.
func (fs *FilterSet) RecordPartial(r MatchResult) {
	if r.IsFullMatch() || len(r.Unmatched) == len(fs.filters) {
		return
	}
	for _, existing := range fs.partials {
		if existing.Document == r.Document {
			return
		}
	}
	fs.partials = append(fs.partials, r)
}

// PartialMatches returns recorded partial matches in the order first seen.
func (fs *FilterSet) PartialMatches() []MatchResult {
	return append([]MatchResult(nil), fs.partials...)
}

// BestPartialMatches returns partial matches ranked closest first
// (ascending unmatched count, ties in the order first seen).
func (fs *FilterSet) BestPartialMatches() []MatchResult {
	ranked := fs.PartialMatches()
	sort.SliceStable(ranked, func(i, j int) bool {
		return len(ranked[i].Unmatched) < len(ranked[j].Unmatched)
	})
	return ranked
}

// String renders one "  path : pattern" line per filter.
func (fs *FilterSet) String() string {
	var sb strings.Builder
	for _, f := range fs.filters {
		fmt.Fprintf(&sb, "  %s : %s\n", f.Path, f.Pattern)
	}
	return sb.String()
}

// MatchResult is the outcome of evaluating a FilterSet against one document.
// len(Matched)+len(Unmatched) always equals the FilterSet size.
type MatchResult struct {
	Matched   []Filter
	Unmatched []Filter // each carries Mismatch detail
	Document  *types.Document
}

// IsFullMatch reports whether every filter matched.
func (r MatchResult) IsFullMatch() bool {
	return len(r.Unmatched) == 0
}

// MatchedCount returns the number of matched filters.
func (r MatchResult) MatchedCount() int {
	return len(r.Matched)
}

// TotalFilterCount returns the number of filters evaluated.
func (r MatchResult) TotalFilterCount() int {
	return len(r.Matched) + len(r.Unmatched)
}

// Describe returns the MATCHED/UNMATCHED breakdown used in logs and reports.
func (r MatchResult) Describe() map[string]any {
	matched := make([]string, 0, len(r.Matched))
	for _, f := range r.Matched {
		matched = append(matched, f.Path+"="+f.Pattern)
	}

	unmatched := make([]map[string]string, 0, len(r.Unmatched))
	for _, f := range r.Unmatched {
		detail := map[string]string{"key": f.Path}
		if f.Mismatch != nil {
			detail["Expected"] = f.Mismatch.Expected
			detail["Actual"] = f.Mismatch.Actual
		}
		unmatched = append(unmatched, detail)
	}

	return map[string]any{
		"MATCHED":   matched,
		"UNMATCHED": unmatched,
	}
}

// String renders r as a multi-line breakdown for failure messages.
func (r MatchResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Partial match (%d/%d filters)", r.MatchedCount(), r.TotalFilterCount())
	if r.Document != nil {
		fmt.Fprintf(&sb, " seq=%d", r.Document.Seq)
	}
	sb.WriteString("\n")
	for _, f := range r.Matched {
		fmt.Fprintf(&sb, "    MATCHED   %s = %s\n", f.Path, f.Pattern)
	}
	for _, f := range r.Unmatched {
		if f.Mismatch == nil {
			fmt.Fprintf(&sb, "    UNMATCHED %s\n", f.Path)
			continue
		}
		fmt.Fprintf(&sb, "    UNMATCHED %s Expected=%q Actual=%q\n", f.Path, f.Mismatch.Expected, f.Mismatch.Actual)
	}
	return sb.String()
}
