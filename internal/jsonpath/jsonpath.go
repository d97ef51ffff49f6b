// Package jsonpath wraps github.com/pb33f/jsonpath so §4.8's
// `$.a.b[0].c` extraction and JSONPath-equality assertion blocks don't
// touch the third-party API directly.
package jsonpath

import (
	"encoding/json"
	"fmt"

	"github.com/pb33f/jsonpath"
)

// Query evaluates expr (an RFC 9535 JSONPath, e.g. "$.data.user.id")
// against body (a raw JSON document) and returns the first matching node.
func Query(body []byte, expr string) (any, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("jsonpath: response body is not valid JSON: %w", err)
	}

	path, err := jsonpath.NewPath(expr)
	if err != nil {
		return nil, fmt.Errorf("jsonpath: invalid expression %q: %w", expr, err)
	}

	matches := path.Query(doc)
	if len(matches) == 0 {
		return nil, fmt.Errorf("jsonpath: %q matched no value", expr)
	}
	return matches[0], nil
}

// Stringify renders a queried value as the plain string §4.8's extract
// block stores as a variable (numbers without trailing zeros, objects as
// compact JSON), matching the teacher's extractFromJSONPath string shape.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool:
		return fmt.Sprintf("%t", t)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
