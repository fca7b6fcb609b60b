// internal/payload/template.go
package payload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/solatis/busprobe/internal/dsl"
	"github.com/solatis/busprobe/internal/match"
	"github.com/solatis/busprobe/internal/scenario"
)

/*
 * JSON payload templates for publish steps.
 *
 * A template is a JSON file under the payload directory. Steps override
 * fields by path ("Message.order.id" or "$.Message.order.id"); values are
 * resolved through the DSL, then typed:
 *
 *   null, <null>, ${null} (any case)  -> JSON null
 *   true / false (any case)           -> boolean
 *   -?\d+                             -> integer
 *   -?\d+\.\d+                        -> float
 *   anything else                     -> string ("" stays "")
 *
 * The $MISSING marker deletes the field instead. Missing intermediate
 * objects are created on Set.
 */

var (
	integerPattern = regexp.MustCompile(`^-?\d+$`)
	decimalPattern = regexp.MustCompile(`^-?\d+\.\d+$`)
)

// Template is a parsed, mutable JSON payload.
type Template struct {
	name string
	data any
}

// Load reads name from dir. Absolute names are read as-is.
func Load(dir, name string) (*Template, error) {
	path := name
	if !filepath.IsAbs(name) {
		path = filepath.Join(dir, name)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error loading JSON payload %s: %w", path, err)
	}
	return Parse(name, raw)
}

// Parse builds a template from raw JSON.
func Parse(name string, raw []byte) (*Template, error) {
	data, err := oj.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("error parsing JSON payload %s: %w", name, err)
	}
	return &Template{name: name, data: data}, nil
}

// Name returns the template's file name.
func (t *Template) Name() string {
	return t.name
}

// Data returns the current JSON tree.
func (t *Template) Data() any {
	return t.data
}

// Set writes value at path after type inference, or deletes the field
// when value is dsl.MissingMarker.
func (t *Template) Set(path, value string) error {
	x, err := compilePath(path)
	if err != nil {
		return err
	}

	if value == dsl.MissingMarker {
		if err := x.Del(t.data); err != nil {
			return fmt.Errorf("delete %s in %s: %w", path, t.name, err)
		}
		return nil
	}

	if len(x) == 1 {
		// "$" alone replaces the whole document
		t.data = InferType(value)
		return nil
	}
	if err := x.Set(t.data, InferType(value)); err != nil {
		return fmt.Errorf("set %s in %s: %w", path, t.name, err)
	}
	return nil
}

// Apply resolves each field value with r (nil keeps literals) and sets it.
func (t *Template) Apply(fields []match.Field, r match.ValueResolver, sc *scenario.Context) error {
	for _, f := range fields {
		value := f.Value
		if r != nil {
			resolved, err := r.Resolve(f.Value, sc)
			if err != nil {
				return fmt.Errorf("payload field %s: %w", f.Path, err)
			}
			value = resolved
		}
		if err := t.Set(f.Path, value); err != nil {
			return err
		}
	}
	return nil
}

// JSON renders the template with sorted keys.
func (t *Template) JSON() []byte {
	return []byte(oj.JSON(t.data, &oj.Options{Sort: true}))
}

func compilePath(path string) (jp.Expr, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("empty payload path")
	}
	if !strings.HasPrefix(path, "$") {
		path = "$." + path
	}
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("invalid payload path '%s': %w", path, err)
	}
	return x, nil
}

// InferType converts a resolved string into the JSON value it denotes.
func InferType(value string) any {
	switch strings.ToLower(value) {
	case "null", "<null>", "${null}":
		return nil
	case "":
		return ""
	case "true":
		return true
	case "false":
		return false
	}
	if decimalPattern.MatchString(value) {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	if integerPattern.MatchString(value) {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return value
}
