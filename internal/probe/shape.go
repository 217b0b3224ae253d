package probe

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSON shape hints. Diagnostics describe a response body generically rather
// than adopting any payload schema.
const (
	ShapeEmpty      = "empty"
	ShapeScalar     = "scalar"
	ShapeParseError = "parse-error"
)

// DescribeJSON classifies a response body as array/object/scalar/parse-error
// with a bounded-size summary, e.g. "array[12]" or "object{4}".
func DescribeJSON(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ShapeEmpty
	}
	switch trimmed[0] {
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return ShapeParseError
		}
		return fmt.Sprintf("array[%d]", len(arr))
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return ShapeParseError
		}
		return fmt.Sprintf("object{%d}", len(obj))
	default:
		var v any
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return ShapeParseError
		}
		return ShapeScalar
	}
}
