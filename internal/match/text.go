// internal/match/text.go
package match

import (
	"encoding/json"
	"fmt"
	"strconv"
)

/*
 * Text rendering of resolved values.
 *
 * Filters compare strings, so every resolved value is rendered to text
 * before the wildcard test. Scalars render as their JSON literal text
 * (json.Number keeps the original digits, so 1.50 stays "1.50"). JSON null
 * renders as "null". Objects and arrays render as compact JSON, which lets
 * "%needle%" patterns look inside nested structures.
 */

// Text renders a resolved document value for comparison.
func Text(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}
