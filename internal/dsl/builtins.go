// internal/dsl/builtins.go
package dsl

import (
	"crypto/md5"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/solatis/busprobe/internal/match"
	"github.com/solatis/busprobe/internal/scenario"
	"github.com/solatis/busprobe/internal/types"
)

/*
 * Built-in DSL functions.
 *
 * Grouped by concern:
 *   - builtins.go: identity, constants, merge, scenario lookups
 *   - builtins_time.go: timestamps (computed per call, never cached)
 *   - builtins_text.go: string transforms and random text
 *
 * Builtins returns the shared registry. Callers that need extra
 * functions build their own with NewRegistry(append(BuiltinFunctions(), ...)...).
 */

// MissingMarker is returned by $MISSING. Payload templates delete any
// field whose resolved value equals it.
const MissingMarker = "$MISSING"

// SpotSecret is the fixed token returned by $SPOT_SECRET.
const SpotSecret = "@bracadabra"

// Builtins returns the process-wide registry of built-in functions.
var Builtins = sync.OnceValue(func() *Registry {
	r, err := NewRegistry(BuiltinFunctions()...)
	if err != nil {
		panic(fmt.Sprintf("dsl: invalid built-in registry: %v", err))
	}
	return r
})

// BuiltinFunctions returns a fresh slice of every built-in function.
func BuiltinFunctions() []Function {
	var fns []Function
	fns = append(fns, identityFunctions()...)
	fns = append(fns, constantFunctions()...)
	fns = append(fns, mergeFunctions()...)
	fns = append(fns, contextFunctions()...)
	fns = append(fns, timeFunctions()...)
	fns = append(fns, textFunctions()...)
	return fns
}

func static(name, desc string, fn func() string) Function {
	return Function{
		Name:        name,
		Description: desc,
		Example:     name,
		Fn: func([]string, *scenario.Context) (string, error) {
			return fn(), nil
		},
	}
}

func identityFunctions() []Function {
	return []Function{
		static("$FULL_UUID", "random UUID", uuid.NewString),
		static("$SHORT_UUID", "random UUID without dashes", shortUUID),
		static("$MS_UUID", "random UUID without dashes, prefixed with MS", func() string {
			return "MS" + shortUUID()
		}),
		static("$5_RANDOM_CHARS", "first five characters of a random UUID", func() string {
			return uuid.NewString()[:5]
		}),
	}
}

func shortUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func constantFunctions() []Function {
	return []Function{
		static("$COMMA", "a literal comma", func() string { return "," }),
		static("$BLANK_SPACE", "a single space", func() string { return " " }),
		static("$SPOT_SECRET", "the fixed spot secret token", func() string { return SpotSecret }),
		static("$EMPTY_STRING", "the empty string", func() string { return "" }),
		static("$MISSING", "marks a payload field for removal", func() string { return MissingMarker }),
	}
}

func mergeFunctions() []Function {
	return []Function{
		{
			Name:        "$MERGE_VALUES",
			Description: "concatenate all arguments",
			Example:     "$MERGE_VALUES(a,$COMMA,b)",
			MinArgs:     1,
			MaxArgs:     Variadic,
			Fn: func(args []string, _ *scenario.Context) (string, error) {
				return strings.Join(args, ""), nil
			},
		},
		{
			Name:        "$REMOVE_DASHES",
			Description: "concatenate all arguments and strip '-'",
			Example:     "$REMOVE_DASHES($FULL_UUID)",
			MinArgs:     1,
			MaxArgs:     Variadic,
			Fn: func(args []string, _ *scenario.Context) (string, error) {
				return strings.ReplaceAll(strings.Join(args, ""), "-", ""), nil
			},
		},
		{
			Name:        "$UUID_FROM_STRINGS",
			Description: "name-based (MD5) UUID of the concatenated arguments",
			Example:     "$UUID_FROM_STRINGS(order,42)",
			MinArgs:     1,
			MaxArgs:     Variadic,
			Fn: func(args []string, _ *scenario.Context) (string, error) {
				return NameUUID([]byte(strings.Join(args, ""))).String(), nil
			},
		},
	}
}

// NameUUID returns the version 3 UUID of data hashed without a namespace.
// Values are stable across runs and hosts for identical input.
func NameUUID(data []byte) uuid.UUID {
	sum := md5.Sum(data)
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	u, _ := uuid.FromBytes(sum[:])
	return u
}

func contextFunctions() []Function {
	return []Function{
		{
			Name:        "$PAYLOAD_VALUE",
			Description: "value recorded for key by a payload step",
			Example:     "$PAYLOAD_VALUE(Message.id)",
			MinArgs:     1,
			MaxArgs:     1,
			Fn: func(args []string, sc *scenario.Context) (string, error) {
				return sc.PayloadValue(args[0])
			},
		},
		{
			Name:        "$LAST_PAYLOAD",
			Description: "last payload published by the scenario",
			Example:     "$LAST_PAYLOAD",
			Fn: func(_ []string, sc *scenario.Context) (string, error) {
				return sc.LastPayload()
			},
		},
		{
			Name:        "$LAST_MATCHED_RECORD",
			Description: "field of the last matched message",
			Example:     "$LAST_MATCHED_RECORD(Message.id)",
			MinArgs:     1,
			MaxArgs:     1,
			Fn:          lastMatchedRecord,
		},
	}
}

// lastMatchedRecord reads a field of the last matched message. An absent
// field reads as the empty string; a malformed path is still an error.
func lastMatchedRecord(args []string, sc *scenario.Context) (string, error) {
	doc, err := sc.LastMatched()
	if err != nil {
		return "", err
	}
	res, err := match.Resolve(doc.Body, args[0])
	if err != nil {
		return "", err
	}
	if !res.Found {
		return "", nil
	}
	return match.Text(res.Value), nil
}

// intArg parses a numeric argument.
func intArg(name, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %s expects an integer, got %q", types.ErrInvalidArgument, name, s)
	}
	return n, nil
}
