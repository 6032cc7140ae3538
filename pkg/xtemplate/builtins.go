package xtemplate

import (
	"encoding/json"
	"fmt"
	"html"
	"math"
	"reflect"
	"strings"
)

// Builtins returns the commands every Engine starts with.
func Builtins() Commands {
	return Commands{
		"default":    defaultCommand,
		"join":       joinCommand,
		"upper":      upperCommand,
		"lower":      lowerCommand,
		"capitalize": capitalizeCommand,
		"replace":    replaceCommand,
		"trim":       trimCommand,
		"length":     lengthCommand,
		"range":      rangeCommand,
		"escape":     escapeCommand,
		"json":       jsonCommand,
	}
}

// defaultCommand returns its first parameter when truthy, the second
// otherwise. Usage: {{ default(title, "Untitled") }}
func defaultCommand(_ *Scope, option *Option) (interface{}, error) {
	if len(option.Params) < 2 {
		return nil, fmt.Errorf("default requires a value and a fallback")
	}
	if IsTruthy(option.Params[0]) {
		return option.Params[0], nil
	}
	return option.Params[1], nil
}

// joinCommand joins the elements of a sequence with a delimiter ("," by
// default). Usage: {{ join(tags, ", ") }}
func joinCommand(_ *Scope, option *Option) (interface{}, error) {
	delimiter := ","
	if len(option.Params) > 1 {
		delimiter = jsString(option.Params[1])
	}
	input := option.Param(0)
	if !IsTruthy(input) {
		return "", nil
	}
	if isString(input) {
		return jsString(input), nil
	}

	if kind := reflect.ValueOf(input).Kind(); kind != reflect.Slice && kind != reflect.Array {
		return nil, fmt.Errorf("join requires a sequence, got %T", input)
	}
	entries := iterate(input)
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = ToString(e.value)
	}
	return strings.Join(parts, delimiter), nil
}

func upperCommand(_ *Scope, option *Option) (interface{}, error) {
	return strings.ToUpper(ToString(option.Param(0))), nil
}

func lowerCommand(_ *Scope, option *Option) (interface{}, error) {
	return strings.ToLower(ToString(option.Param(0))), nil
}

// capitalizeCommand upper-cases the first character and lower-cases the rest.
func capitalizeCommand(_ *Scope, option *Option) (interface{}, error) {
	s := ToString(option.Param(0))
	if s == "" {
		return "", nil
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:]), nil
}

// replaceCommand replaces occurrences of old with new, optionally at most
// count times. Usage: {{ replace(name, "-", "_") }}
func replaceCommand(_ *Scope, option *Option) (interface{}, error) {
	if len(option.Params) < 3 {
		return nil, fmt.Errorf("replace requires a value, a search string and a replacement")
	}
	count := -1
	if len(option.Params) > 3 {
		n := ToNumber(option.Params[3])
		if math.IsNaN(n) || n < 0 {
			return nil, fmt.Errorf("replace count must be a non-negative number")
		}
		count = int(n)
	}
	return strings.Replace(ToString(option.Params[0]), jsString(option.Params[1]), jsString(option.Params[2]), count), nil
}

// trimCommand strips surrounding whitespace, or the given characters.
func trimCommand(_ *Scope, option *Option) (interface{}, error) {
	s := ToString(option.Param(0))
	if len(option.Params) > 1 {
		return strings.Trim(s, jsString(option.Params[1])), nil
	}
	return strings.TrimSpace(s), nil
}

// lengthCommand returns the number of elements, keys or bytes.
func lengthCommand(_ *Scope, option *Option) (interface{}, error) {
	v := option.Param(0)
	if isString(v) {
		return len(jsString(v)), nil
	}
	if n, ok := property(v, "length"); ok {
		return n, nil
	}
	if o, ok := v.(*Object); ok {
		return o.Len(), nil
	}
	if rv := reflect.ValueOf(v); v != nil && rv.Kind() == reflect.Map {
		return rv.Len(), nil
	}
	return 0, nil
}

// maxRangeLength bounds the arrays range() will build.
const maxRangeLength = 1 << 20

// rangeCommand builds [start, start+step, ...) up to end.
// Usage: {{#each(range(0, 5))}}...{{/each}}
func rangeCommand(_ *Scope, option *Option) (interface{}, error) {
	var start, end, step float64 = 0, 0, 1
	switch len(option.Params) {
	case 1:
		end = ToNumber(option.Params[0])
	case 2, 3:
		start, end = ToNumber(option.Params[0]), ToNumber(option.Params[1])
		if len(option.Params) == 3 {
			step = ToNumber(option.Params[2])
		}
	default:
		return nil, fmt.Errorf("range requires one to three numbers")
	}
	if math.IsNaN(start) || math.IsNaN(end) || math.IsNaN(step) || step == 0 {
		return nil, fmt.Errorf("range arguments must be numbers and step must not be zero")
	}

	n := math.Ceil((end - start) / step)
	if n <= 0 {
		return []interface{}{}, nil
	}
	if n > maxRangeLength {
		return nil, fmt.Errorf("range of %v elements exceeds the limit of %d", n, maxRangeLength)
	}
	items := make([]interface{}, int(n))
	for i := range items {
		items[i] = start + float64(i)*step
	}
	return items, nil
}

// escapeCommand HTML-escapes its argument; useful inside {{{ }}}.
func escapeCommand(_ *Scope, option *Option) (interface{}, error) {
	return html.EscapeString(ToString(option.Param(0))), nil
}

// jsonCommand encodes its argument as JSON. Objects keep their key order.
func jsonCommand(_ *Scope, option *Option) (interface{}, error) {
	data, err := json.Marshal(toJSONValue(option.Param(0)))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// orderedJSON marshals an Object with its keys in insertion order.
type orderedJSON struct{ obj *Object }

func (o orderedJSON) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range o.obj.Keys() {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		v, _ := o.obj.Get(k)
		val, err := json.Marshal(toJSONValue(v))
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

func toJSONValue(v interface{}) interface{} {
	switch x := v.(type) {
	case undefinedType:
		return nil
	case *Object:
		return orderedJSON{obj: x}
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = toJSONValue(item)
		}
		return out
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	}
	return v
}
