// internal/match/fieldpath.go
package match

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/busprobe/internal/types"
)

/*
 * Field path resolution for buffered documents.
 *
 * Resolves dotted paths ("Message.items[0].price") against a decoded JSON
 * tree. Absence is a normal outcome (Found=false), never an error. Only a
 * syntactically broken index such as "items[x]" or an index that overflows
 * int is an error (ErrMalformedPath), and it is raised before any traversal.
 *
 * Key functions:
 *   - ParsePath: splits and validates a path into PathSegments
 *   - Resolve: parse + walk in one call
 *   - ResolveSegments: walks pre-parsed segments (used by the matcher so a
 *     FilterSet parses each path once, not once per candidate)
 *
 * Indexed segments keep a lookup fallback: when "name[N]" is applied to a
 * node that has no "name" key, N indexes the current node itself. Existing
 * filter files address top-level arrays this way, so it stays.
 *
 * Traversal is strictly left to right with no backtracking.
 */

// ResolveResult contains the resolved value.
type ResolveResult struct {
	Value any  // resolved value (nil for JSON null or when not found)
	Found bool // true if path resolved to a value, including JSON null
}

// PathError reports a path that cannot be parsed.
type PathError struct {
	Path    string
	Segment string
	Err     error
}

func (e *PathError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("field path %q: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("field path %q: segment %q: %v", e.Path, e.Segment, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// Resolve parses path and walks it against root.
// Returns a *PathError wrapping ErrMalformedPath for unparseable indices.
func Resolve(root any, path string) (ResolveResult, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return ResolveResult{}, err
	}
	return ResolveSegments(root, segs), nil
}

// ParsePath splits path on "." and parses optional trailing indices per segment.
func ParsePath(path string) ([]types.PathSegment, error) {
	parts := strings.Split(path, ".")
	if len(parts) > types.MaxPathDepth {
		return nil, &PathError{Path: path, Err: types.ErrPathTooDeep}
	}

	segs := make([]types.PathSegment, 0, len(parts))
	for _, part := range parts {
		seg, err := parseSegment(strings.TrimSpace(part))
		if err != nil {
			return nil, &PathError{Path: path, Segment: part, Err: err}
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// parseSegment splits "name[1][2]" into key and indices.
// A segment that does not end in "]" is a plain key even if it contains "[".
func parseSegment(raw string) (types.PathSegment, error) {
	open := strings.IndexByte(raw, '[')
	if open < 0 || !strings.HasSuffix(raw, "]") {
		return types.PathSegment{Raw: raw, Key: raw}, nil
	}

	seg := types.PathSegment{Raw: raw, Key: raw[:open]}
	rest := raw[open:]
	for rest != "" {
		if rest[0] != '[' {
			return types.PathSegment{}, types.ErrMalformedPath
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return types.PathSegment{}, types.ErrMalformedPath
		}
		idx, err := parseIndex(rest[1:end])
		if err != nil {
			return types.PathSegment{}, err
		}
		seg.Indices = append(seg.Indices, idx)
		rest = rest[end+1:]
	}
	return seg, nil
}

// parseIndex accepts only non-negative decimal digits.
func parseIndex(s string) (int, error) {
	if s == "" {
		return 0, types.ErrMalformedPath
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, types.ErrMalformedPath
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: index %s out of range", types.ErrMalformedPath, s)
	}
	return n, nil
}

// ResolveSegments walks segs against root. It never fails; absence is Found=false.
func ResolveSegments(root any, segs []types.PathSegment) ResolveResult {
	current := root
	for _, seg := range segs {
		if !seg.IsIndexed() {
			obj, ok := current.(map[string]any)
			if !ok {
				return ResolveResult{}
			}
			val, ok := obj[seg.Key]
			if !ok {
				return ResolveResult{}
			}
			current = val
			continue
		}

		// Keyed array lookup, falling back to the current node when the key is absent
		if obj, ok := current.(map[string]any); ok {
			if val, ok := obj[seg.Key]; ok {
				current = val
			}
		}
		for _, idx := range seg.Indices {
			arr, ok := current.([]any)
			if !ok || idx >= len(arr) {
				return ResolveResult{}
			}
			current = arr[idx]
		}
	}
	return ResolveResult{Value: current, Found: true}
}
