// internal/types/path.go
package types

/*
 * Domain types for filter path resolution.
 *
 * A filter path is a dotted string such as "Message.items[0].price". It is
 * parsed once into PathSegments by internal/match and walked left to right
 * against a document body.
 *
 * Key types:
 *   - PathSegment: one dotted component, an optional key plus zero or more
 *     trailing array indices ("items[0][2]" is Key "items", Indices [0 2])
 *
 * Dependencies: None
 */

// PathSegment represents one dotted component of a field path.
type PathSegment struct {
	Raw     string // trimmed source text, kept for diagnostics
	Key     string // object key; empty for a bare "[N]" segment
	Indices []int  // trailing array indices, applied in order
}

// IsIndexed reports whether the segment carries array indices.
func (s PathSegment) IsIndexed() bool {
	return len(s.Indices) > 0
}
