// internal/match/matcher.go
package match

import (
	"fmt"

	"github.com/solatis/busprobe/internal/types"
)

/*
 * Matching a FilterSet against a buffer snapshot.
 *
 * FindFullMatch evaluates every candidate and classifies the outcome:
 *   - zero full matches: (nil, nil), partials recorded on the FilterSet
 *   - one full match: claimed from the store by identity and returned
 *   - more than one: *AmbiguousMatchError, never auto-resolved
 *
 * Claiming: Store.Remove is compare-and-remove. When two awaits race for
 * the same document only one Remove returns true; the loser sees
 * (nil, nil) and keeps polling as if nothing had matched.
 *
 * AssertNoFullMatch is the absence check used by AwaitNoMatch.
 */

// Store is the removal side of the message buffer.
type Store interface {
	// Remove deletes doc by identity and reports whether this call removed it.
	Remove(doc *types.Document) bool
}

// AmbiguousMatchError reports more than one full match for one FilterSet.
type AmbiguousMatchError struct {
	Count     int
	Filters   string
	Documents []*types.Document
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("multiple messages matched the filters (%d found):\n%s", e.Count, e.Filters)
}

func (e *AmbiguousMatchError) Unwrap() error {
	return types.ErrAmbiguousMatch
}

// UnexpectedMatchError reports a full match seen while awaiting absence.
type UnexpectedMatchError struct {
	Filters  string
	Document *types.Document
}

func (e *UnexpectedMatchError) Error() string {
	return fmt.Sprintf("expected no match but found a matching message:\n%s", e.Filters)
}

func (e *UnexpectedMatchError) Unwrap() error {
	return types.ErrUnexpectedMatch
}

// FindFullMatch looks for exactly one document in docs that satisfies fs.
// On success the document is removed from store before it is returned.
func FindFullMatch(docs []*types.Document, fs *FilterSet, store Store) (*types.Document, error) {
	var matches []*types.Document

	for _, doc := range docs {
		result := Evaluate(doc, fs)
		if result.IsFullMatch() {
			matches = append(matches, doc)
			continue
		}
		fs.RecordPartial(result)
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		if store != nil && !store.Remove(matches[0]) {
			// Claimed by a concurrent await between snapshot and remove
			return nil, nil
		}
		return matches[0], nil
	default:
		return nil, &AmbiguousMatchError{
			Count:     len(matches),
			Filters:   fs.String(),
			Documents: matches,
		}
	}
}

// AssertNoFullMatch returns *UnexpectedMatchError for the first document in
// docs that satisfies fs.
func AssertNoFullMatch(docs []*types.Document, fs *FilterSet) error {
	for _, doc := range docs {
		if Evaluate(doc, fs).IsFullMatch() {
			return &UnexpectedMatchError{Filters: fs.String(), Document: doc}
		}
	}
	return nil
}
