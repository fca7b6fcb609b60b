// internal/dsl/resolver.go
package dsl

import (
	"errors"

	"github.com/solatis/busprobe/internal/scenario"
)

// Resolver resolves raw placeholder strings against a Registry.
// Safe for concurrent use; all per-call state lives in the scenario context.
type Resolver struct {
	reg *Registry
}

// NewResolver returns a resolver over reg.
func NewResolver(reg *Registry) *Resolver {
	return &Resolver{reg: reg}
}

// Registry returns the underlying function table.
func (r *Resolver) Registry() *Registry {
	return r.reg
}

// Resolve parses raw and evaluates it depth-first, left to right.
// Input that is not a call shape is returned unchanged.
func (r *Resolver) Resolve(raw string, sc *scenario.Context) (string, error) {
	expr, err := Parse(raw)
	if err != nil {
		return "", &Error{Expr: raw, Err: err}
	}
	out, err := r.eval(expr, sc)
	if err != nil {
		var de *Error
		if errors.As(err, &de) && de.Expr == "" {
			de.Expr = raw
			return "", de
		}
		return "", &Error{Expr: raw, Err: err}
	}
	return out, nil
}

func (r *Resolver) eval(expr Expr, sc *scenario.Context) (string, error) {
	switch e := expr.(type) {
	case Literal:
		return string(e), nil
	case *Call:
		args := make([]string, 0, len(e.Args))
		for _, a := range e.Args {
			v, err := r.eval(a, sc)
			if err != nil {
				return "", err
			}
			args = append(args, v)
		}
		return r.reg.Call(e.Name, args, sc)
	default:
		return "", nil
	}
}
