// internal/dsl/builtins_text.go
package dsl

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/solatis/busprobe/internal/scenario"
	"github.com/solatis/busprobe/internal/types"
)

func textFunctions() []Function {
	return []Function{
		{
			Name:        "$TO_UPPER_CASE",
			Description: "upper-case the argument",
			Example:     "$TO_UPPER_CASE(abc)",
			MinArgs:     1,
			MaxArgs:     1,
			Fn: func(args []string, _ *scenario.Context) (string, error) {
				return cases.Upper(language.Und).String(args[0]), nil
			},
		},
		{
			Name:        "$REMOVE_ALL_CHARS",
			Description: "remove every match of regex from s",
			Example:     "$REMOVE_ALL_CHARS([0-9],a1b2)",
			MinArgs:     2,
			MaxArgs:     2,
			Fn: func(args []string, _ *scenario.Context) (string, error) {
				re, err := compileArg("$REMOVE_ALL_CHARS", args[0])
				if err != nil {
					return "", err
				}
				return re.ReplaceAllString(args[1], ""), nil
			},
		},
		{
			Name:        "$REPLACE_ALL_CHARS",
			Description: "replace every match of regex in s",
			Example:     "$REPLACE_ALL_CHARS(-,_,a-b)",
			MinArgs:     3,
			MaxArgs:     3,
			Fn: func(args []string, _ *scenario.Context) (string, error) {
				re, err := compileArg("$REPLACE_ALL_CHARS", args[0])
				if err != nil {
					return "", err
				}
				return re.ReplaceAllString(args[2], args[1]), nil
			},
		},
		{
			Name:        "$CAPITALIZE",
			Description: "upper-case the first letter of each space-separated word",
			Example:     "$CAPITALIZE(hello world)",
			MinArgs:     1,
			MaxArgs:     1,
			Fn: func(args []string, _ *scenario.Context) (string, error) {
				return Capitalize(args[0]), nil
			},
		},
		{
			Name:        "$STRING_SPLIT",
			Description: "split s into equal groups joined by sep",
			Example:     "$STRING_SPLIT(2,-,abcd)",
			MinArgs:     3,
			MaxArgs:     3,
			Fn: func(args []string, _ *scenario.Context) (string, error) {
				groups, err := intArg("$STRING_SPLIT", args[0])
				if err != nil {
					return "", err
				}
				return SplitGroups(args[2], groups, args[1])
			},
		},
		{
			Name:        "$RANDOM_STRING_OF_LENGTH",
			Description: "n random lower-case letters",
			Example:     "$RANDOM_STRING_OF_LENGTH(8)",
			MinArgs:     1,
			MaxArgs:     1,
			Fn: func(args []string, _ *scenario.Context) (string, error) {
				n, err := intArg("$RANDOM_STRING_OF_LENGTH", args[0])
				if err != nil {
					return "", err
				}
				if n < 0 {
					return "", fmt.Errorf("%w: length must not be negative", types.ErrInvalidArgument)
				}
				return randomLetters(n), nil
			},
		},
		{
			Name:        "$RANDOM_TEXT_OF_LENGTH",
			Description: "random letters of total length n split into groups by spaces",
			Example:     "$RANDOM_TEXT_OF_LENGTH(20,4)",
			MinArgs:     2,
			MaxArgs:     2,
			Fn: func(args []string, _ *scenario.Context) (string, error) {
				n, err := intArg("$RANDOM_TEXT_OF_LENGTH", args[0])
				if err != nil {
					return "", err
				}
				groups, err := intArg("$RANDOM_TEXT_OF_LENGTH", args[1])
				if err != nil {
					return "", err
				}
				if n < 0 {
					return "", fmt.Errorf("%w: length must not be negative", types.ErrInvalidArgument)
				}
				text, err := SplitGroups(randomLetters(n), groups, " ")
				if err != nil {
					return "", err
				}
				if r := []rune(text); len(r) > n {
					text = string(r[:n])
				}
				return text, nil
			},
		},
	}
}

func compileArg(name, expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrInvalidArgument, name, err)
	}
	return re, nil
}

// Capitalize upper-cases the first letter of each word separated by a
// single space. Runs of spaces collapse and trailing spaces are dropped.
func Capitalize(s string) string {
	words := strings.Split(s, " ")
	for len(words) > 0 && words[len(words)-1] == "" {
		words = words[:len(words)-1]
	}

	upper := cases.Upper(language.Und)
	var b strings.Builder
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		b.WriteString(upper.String(string(r[0])))
		b.WriteString(string(r[1:]))
		if i < len(words)-1 {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// SplitGroups cuts s into chunks of len(s)/groups runes joined by sep.
// The last chunk holds any remainder, so more than groups chunks can result.
func SplitGroups(s string, groups int, sep string) (string, error) {
	if groups <= 0 {
		return "", fmt.Errorf("%w: group count must be positive, got %d", types.ErrInvalidArgument, groups)
	}
	r := []rune(s)
	size := len(r) / groups
	if size == 0 {
		return s, nil
	}

	var b strings.Builder
	for i := 0; i < len(r); i += size {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(string(r[i:min(i+size, len(r))]))
	}
	return b.String(), nil
}

func randomLetters(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + rand.IntN(26))
	}
	return string(b)
}
