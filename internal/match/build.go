// internal/match/build.go
package match

import (
	"fmt"

	"github.com/solatis/busprobe/internal/scenario"
)

/*
 * FilterSet construction from declared fields.
 *
 * Expected values pass through a ValueResolver (the DSL) eagerly, once,
 * at construction. Any DSL or path error surfaces here, before polling,
 * and is never retried.
 */

// Field is one declared (path, raw expected value) pair, in declaration order.
type Field struct {
	Path  string
	Value string
}

// ValueResolver turns a raw expected value into its literal form.
type ValueResolver interface {
	Resolve(raw string, sc *scenario.Context) (string, error)
}

// BuildFilterSet resolves every field value and returns the FilterSet.
// A nil resolver keeps values as literals.
func BuildFilterSet(fields []Field, resolver ValueResolver, sc *scenario.Context) (*FilterSet, error) {
	fs := NewFilterSet()
	for _, field := range fields {
		value := field.Value
		if resolver != nil {
			resolved, err := resolver.Resolve(field.Value, sc)
			if err != nil {
				return nil, fmt.Errorf("filter %s: %w", field.Path, err)
			}
			value = resolved
		}
		if err := fs.Add(field.Path, value); err != nil {
			return nil, err
		}
	}
	return fs, nil
}
