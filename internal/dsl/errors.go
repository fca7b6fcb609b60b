package dsl

import (
	"fmt"
)

// Error reports a failure resolving a DSL expression.
// Err wraps one of the types.Err* DSL sentinels so callers can errors.Is it.
type Error struct {
	Expr string // full expression being resolved, when known
	Func string // function that failed, when known
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Expr != "" && e.Func != "":
		return fmt.Sprintf("resolve %q: %s: %v", e.Expr, e.Func, e.Err)
	case e.Func != "":
		return fmt.Sprintf("%s: %v", e.Func, e.Err)
	case e.Expr != "":
		return fmt.Sprintf("resolve %q: %v", e.Expr, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
