// internal/dsl/registry.go
package dsl

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/solatis/busprobe/internal/scenario"
	"github.com/solatis/busprobe/internal/types"
)

/*
 * Function registry for placeholder expressions.
 *
 * A Registry is a name-to-closure table built once by NewRegistry and
 * read-only afterwards, so concurrent Call and Lookup need no locking.
 * Every function receives the scenario context as an explicit argument.
 *
 * Key functions:
 *   - NewRegistry: validate and index a set of Functions
 *   - Call: arity check + invoke
 *   - Names: sorted function names for error messages and listings
 */

// Variadic marks a Function with no upper argument bound.
const Variadic = -1

var namePattern = regexp.MustCompile(`^\$[A-Z0-9_]+$`)

// Function is one registered DSL function.
type Function struct {
	Name        string // "$NAME"
	Description string
	Example     string
	MinArgs     int
	MaxArgs     int // Variadic for no upper bound
	Fn          func(args []string, sc *scenario.Context) (string, error)
}

// Arity renders the argument contract, e.g. "0", "2", "1+".
func (f Function) Arity() string {
	switch {
	case f.MaxArgs == Variadic:
		return fmt.Sprintf("%d+", f.MinArgs)
	case f.MinArgs == f.MaxArgs:
		return fmt.Sprintf("%d", f.MinArgs)
	default:
		return fmt.Sprintf("%d-%d", f.MinArgs, f.MaxArgs)
	}
}

// Registry maps function names to implementations. Immutable once built.
type Registry struct {
	fns   map[string]Function
	names []string
}

// NewRegistry builds a registry from fns.
// Names must match `^\$[A-Z0-9_]+$` and be unique.
func NewRegistry(fns ...Function) (*Registry, error) {
	r := &Registry{fns: make(map[string]Function, len(fns))}
	for _, f := range fns {
		if !namePattern.MatchString(f.Name) {
			return nil, fmt.Errorf("%w: invalid function name %q", types.ErrInvalidArgument, f.Name)
		}
		if f.Fn == nil {
			return nil, fmt.Errorf("%w: function %s has no implementation", types.ErrInvalidArgument, f.Name)
		}
		if f.MaxArgs != Variadic && f.MaxArgs < f.MinArgs {
			return nil, fmt.Errorf("%w: function %s has max args below min args", types.ErrInvalidArgument, f.Name)
		}
		if _, exists := r.fns[f.Name]; exists {
			return nil, fmt.Errorf("%w: %s", types.ErrFunctionExists, f.Name)
		}
		r.fns[f.Name] = f
		r.names = append(r.names, f.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (Function, bool) {
	f, ok := r.fns[name]
	return f, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Functions returns all registered functions sorted by name.
func (r *Registry) Functions() []Function {
	out := make([]Function, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.fns[name])
	}
	return out
}

// Call invokes name with already-resolved args.
// A nil sc is replaced by an empty scenario context.
func (r *Registry) Call(name string, args []string, sc *scenario.Context) (string, error) {
	f, ok := r.fns[name]
	if !ok {
		return "", r.unknown(name)
	}
	if err := checkArity(f, len(args)); err != nil {
		return "", &Error{Func: name, Err: err}
	}
	if sc == nil {
		sc = scenario.New()
	}
	out, err := f.Fn(args, sc)
	if err != nil {
		return "", &Error{Func: name, Err: err}
	}
	return out, nil
}

func (r *Registry) unknown(name string) error {
	return &Error{
		Func: name,
		Err: fmt.Errorf("%w: %s\nAvailable methods:\n  %s",
			types.ErrUnknownFunction, name, strings.Join(r.names, "\n  ")),
	}
}

func checkArity(f Function, got int) error {
	if f.MaxArgs == f.MinArgs && got != f.MinArgs {
		return fmt.Errorf("%w: %s expects %d argument(s), got %d", types.ErrArgumentCount, f.Name, f.MinArgs, got)
	}
	if got < f.MinArgs {
		return fmt.Errorf("%w: %s expects at least %d argument(s), got %d", types.ErrArgumentCount, f.Name, f.MinArgs, got)
	}
	if f.MaxArgs != Variadic && got > f.MaxArgs {
		return fmt.Errorf("%w: %s expects at most %d argument(s), got %d", types.ErrArgumentCount, f.Name, f.MaxArgs, got)
	}
	return nil
}
