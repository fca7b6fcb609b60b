// internal/dsl/parser.go
package dsl

import (
	"fmt"
	"strings"

	"github.com/solatis/busprobe/internal/types"
)

/*
 * Recursive-descent parser for placeholder expressions.
 *
 * Grammar (the call must span the whole input, otherwise it is a literal):
 *
 *   expr     := call | literal
 *   call     := name | name "(" [ args ] ")"
 *   name     := "$" [A-Z0-9_]+
 *   args     := arg { "," arg }
 *
 * Arguments are split only at commas at nesting depth zero, so
 * "$A($B(x,y),z)" has two arguments. Raw-empty pieces ("a,,b") are
 * dropped, the rest are trimmed and parsed recursively. "$A()" has no
 * arguments.
 *
 * Unbalanced parentheses inside a call ("$A(x", "$A(x))(") are
 * ErrMalformedExpression. Input that merely starts with a name and
 * continues with something other than "(" ("$5.00", "$A and b") is a
 * literal.
 */

// Expr is a parsed placeholder expression.
type Expr interface {
	String() string
	isExpr()
}

// Literal is text returned unchanged by resolution.
type Literal string

func (l Literal) String() string { return string(l) }
func (Literal) isExpr()          {}

// Call invokes a registered function with resolved arguments.
type Call struct {
	Name string // includes the leading "$"
	Args []Expr
}

func (c *Call) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}
	return c.Name + "(" + strings.Join(parts, ",") + ")"
}

func (*Call) isExpr() {}

// Parse parses raw into an expression tree.
func Parse(raw string) (Expr, error) {
	return parse(raw, 0)
}

func parse(s string, depth int) (Expr, error) {
	if depth > types.MaxExpressionDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", types.ErrMalformedExpression, types.MaxExpressionDepth)
	}

	name, rest := scanName(s)
	if name == "" {
		return Literal(s), nil
	}
	if rest == "" {
		return &Call{Name: name}, nil
	}
	if rest[0] != '(' {
		return Literal(s), nil
	}

	pieces, err := splitArgs(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, s)
	}

	call := &Call{Name: name}
	for _, piece := range pieces {
		arg, err := parse(strings.TrimSpace(piece), depth+1)
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
	}
	return call, nil
}

// scanName returns the leading "$NAME" of s and the remainder.
// name is empty when s does not start with a valid name.
func scanName(s string) (name, rest string) {
	if len(s) < 2 || s[0] != '$' {
		return "", s
	}
	i := 1
	for i < len(s) && isNameChar(s[i]) {
		i++
	}
	if i == 1 {
		return "", s
	}
	return s[:i], s[i:]
}

func isNameChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

// splitArgs takes "(...)" and returns the raw argument pieces.
// The opening parenthesis must close at the final byte.
func splitArgs(group string) ([]string, error) {
	if !strings.HasSuffix(group, ")") || len(group) < 2 {
		return nil, types.ErrMalformedExpression
	}
	inner := group[1 : len(group)-1]

	var pieces []string
	depth := 0
	start := 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, types.ErrMalformedExpression
			}
		case ',':
			if depth == 0 {
				pieces = appendPiece(pieces, inner[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, types.ErrMalformedExpression
	}
	return appendPiece(pieces, inner[start:]), nil
}

func appendPiece(pieces []string, piece string) []string {
	if piece == "" {
		return pieces
	}
	return append(pieces, piece)
}
