package xtemplate

import (
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

type undefinedType struct{}

func (undefinedType) String() string { return "undefined" }

// Undefined is the value of an identifier that resolves to nothing and of the
// `undefined` literal. It renders as the empty string. nil plays the role of
// null.
var Undefined interface{} = undefinedType{}

// IsUndefined reports whether v is the Undefined sentinel.
func IsUndefined(v interface{}) bool {
	_, ok := v.(undefinedType)
	return ok
}

// IsTruthy is the single truthiness rule used by #if, #with, #each's else
// branch, `!`, `&&` and `||`. Falsy: undefined, nil, false, 0, NaN, "" and
// nil maps/slices/pointers. Everything else is truthy, including empty
// arrays and objects.
func IsTruthy(v interface{}) bool {
	switch x := v.(type) {
	case nil, undefinedType:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case *Object:
		return x != nil
	}
	if f, ok := toFloat(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.Len() > 0
	case reflect.Bool:
		return rv.Bool()
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	}
	return true
}

// toFloat converts any Go numeric value to float64. The second result is
// false for non-numeric values.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case int32:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case nil, bool, string:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func isNumber(v interface{}) bool {
	_, ok := toFloat(v)
	return ok
}

// ToNumber applies the conventional numeric coercion used by the arithmetic
// and relational operators: null is 0, undefined is NaN, booleans are 0 or 1,
// strings are parsed as decimal numbers (blank is 0, garbage is NaN).
func ToNumber(v interface{}) float64 {
	if f, ok := toFloat(v); ok {
		return f
	}
	switch x := v.(type) {
	case nil:
		return 0
	case undefinedType:
		return math.NaN()
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		return parseNumber(x)
	case *Object:
		return math.NaN()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return parseNumber(rv.String())
	case reflect.Bool:
		if rv.Bool() {
			return 1
		}
		return 0
	case reflect.Slice, reflect.Array:
		return parseNumber(jsString(v))
	}
	return math.NaN()
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	// ParseFloat also accepts "inf", "nan" and hex floats; decimal only here.
	if strings.ContainsAny(s, "xXnNiIpP_") {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

// FormatNumber renders f the way the output layer prints numbers: integers
// without a fraction, shortest round-trip digits otherwise, exponent notation
// below 1e-6 and from 1e21 up.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		s = strings.Replace(s, "e-0", "e-", 1)
		return strings.Replace(s, "e+0", "e+", 1)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ToString converts a value for output: null and undefined become "", arrays
// are comma-joined, objects print as "[object Object]".
func ToString(v interface{}) string {
	switch v.(type) {
	case nil, undefinedType:
		return ""
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && rv.IsNil() {
		return ""
	}
	return jsString(v)
}

// jsString is the string coercion used by concatenation, where null and
// undefined print their names.
func jsString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case undefinedType:
		return "undefined"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case *Object:
		return "[object Object]"
	case []interface{}:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = ToString(item)
		}
		return strings.Join(parts, ",")
	}
	if f, ok := toFloat(v); ok {
		return FormatNumber(f)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return "null"
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = ToString(rv.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	case reflect.Ptr:
		if rv.IsNil() {
			return "null"
		}
		return jsString(rv.Elem().Interface())
	}
	return "[object Object]"
}

// isObjectLike reports values that `+` stringifies rather than adds.
func isObjectLike(v interface{}) bool {
	switch v.(type) {
	case nil, undefinedType, bool, string:
		return false
	case *Object, []interface{}:
		return true
	}
	if isNumber(v) {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct, reflect.Ptr:
		return true
	}
	return false
}

func isString(v interface{}) bool {
	if _, ok := v.(string); ok {
		return true
	}
	return v != nil && reflect.ValueOf(v).Kind() == reflect.String
}

// add implements `+`: concatenation if either operand is a string or an
// object, numeric addition otherwise.
func add(left, right interface{}) interface{} {
	if isString(left) || isString(right) || isObjectLike(left) || isObjectLike(right) {
		return jsString(left) + jsString(right)
	}
	return ToNumber(left) + ToNumber(right)
}

// arithmetic implements `-`, `*`, `/` and `%` over coerced numbers.
func arithmetic(op string, left, right interface{}) float64 {
	l, r := ToNumber(left), ToNumber(right)
	switch op {
	case "-":
		return l - r
	case "*":
		return l * r
	case "/":
		return l / r
	case "%":
		if r == 0 || math.IsInf(l, 0) {
			return math.NaN()
		}
		return math.Mod(l, r)
	}
	return math.NaN()
}

// compare implements the relational operators. Two strings compare
// lexically; anything else compares numerically, with NaN never ordered.
func compare(op string, left, right interface{}) bool {
	if isString(left) && isString(right) {
		l, r := jsString(left), jsString(right)
		switch op {
		case "<":
			return l < r
		case "<=":
			return l <= r
		case ">":
			return l > r
		case ">=":
			return l >= r
		}
		return false
	}
	l, r := ToNumber(left), ToNumber(right)
	switch op {
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	case ">=":
		return l >= r
	}
	return false
}

// strictEquals implements `===`: no coercion between kinds, numbers compare
// by value whatever their Go type, containers compare by identity.
func strictEquals(left, right interface{}) bool {
	lf, lnum := toFloat(left)
	rf, rnum := toFloat(right)
	if lnum || rnum {
		return lnum && rnum && lf == rf
	}
	switch l := left.(type) {
	case nil:
		return right == nil
	case undefinedType:
		return IsUndefined(right)
	case string:
		r, ok := right.(string)
		return ok && l == r
	case bool:
		r, ok := right.(bool)
		return ok && l == r
	}
	if right == nil || IsUndefined(right) {
		return false
	}
	lv, rv := reflect.ValueOf(left), reflect.ValueOf(right)
	if lv.Type() != rv.Type() {
		return false
	}
	switch lv.Kind() {
	case reflect.Map, reflect.Ptr, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return lv.Pointer() == rv.Pointer()
	case reflect.Slice:
		return lv.Pointer() == rv.Pointer() && lv.Len() == rv.Len()
	}
	if lv.Type().Comparable() {
		return left == right
	}
	return false
}

// property looks up key on obj: Object and map entries, exported struct
// fields (exact name first, then case-insensitive), and `length` or a numeric
// index on sequences and strings.
func property(obj interface{}, key string) (interface{}, bool) {
	switch o := obj.(type) {
	case nil, undefinedType:
		return nil, false
	case *Object:
		return o.Get(key)
	case map[string]interface{}:
		v, ok := o[key]
		return v, ok
	case string:
		if key == "length" {
			return len(o), true
		}
		if i, err := strconv.Atoi(key); err == nil && i >= 0 && i < len(o) {
			return o[i : i+1], true
		}
		return nil, false
	}

	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		val := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil, false
		}
		return val.Interface(), true
	case reflect.Slice, reflect.Array:
		if key == "length" {
			return rv.Len(), true
		}
		if i, err := strconv.Atoi(key); err == nil && i >= 0 && i < rv.Len() {
			return rv.Index(i).Interface(), true
		}
	case reflect.Struct:
		t := rv.Type()
		if f, ok := t.FieldByName(key); ok && f.IsExported() {
			fv, err := rv.FieldByIndexErr(f.Index)
			if err != nil {
				return nil, false
			}
			return fv.Interface(), true
		}
		for i := 0; i < t.NumField(); i++ {
			if t.Field(i).IsExported() && strings.EqualFold(t.Field(i).Name, key) {
				return rv.Field(i).Interface(), true
			}
		}
	}
	return nil, false
}

// propertyKey converts a subscript value into a property name.
func propertyKey(key interface{}) string {
	if f, ok := toFloat(key); ok {
		return FormatNumber(f)
	}
	return jsString(key)
}

// entry is one step of an #each iteration.
type entry struct {
	key   interface{} // int index for sequences, string key for mappings
	value interface{}
}

// iterate expands a collection for #each. Sequences yield their elements in
// order, Objects their entries in insertion order and Go maps their entries in
// sorted key order. Anything else yields nothing.
func iterate(collection interface{}) []entry {
	switch c := collection.(type) {
	case nil, undefinedType, string, bool:
		return nil
	case []interface{}:
		entries := make([]entry, len(c))
		for i, v := range c {
			entries[i] = entry{key: i, value: v}
		}
		return entries
	case *Object:
		entries := make([]entry, 0, c.Len())
		for _, k := range c.Keys() {
			v, _ := c.Get(k)
			entries = append(entries, entry{key: k, value: v})
		}
		return entries
	}

	rv := reflect.ValueOf(collection)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		entries := make([]entry, rv.Len())
		for i := range entries {
			entries[i] = entry{key: i, value: rv.Index(i).Interface()}
		}
		return entries
	case reflect.Map:
		type keyed struct {
			name, kind string
			value      interface{}
		}
		pairs := make([]keyed, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().Interface()
			kind := ""
			if t := reflect.TypeOf(k); t != nil {
				kind = t.String()
			}
			pairs = append(pairs, keyed{propertyKey(k), kind, iter.Value().Interface()})
		}
		// 1 and "1" print alike; the key type breaks the tie.
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i].name != pairs[j].name {
				return pairs[i].name < pairs[j].name
			}
			return pairs[i].kind < pairs[j].kind
		})
		entries := make([]entry, len(pairs))
		for i, p := range pairs {
			entries[i] = entry{key: p.name, value: p.value}
		}
		return entries
	}
	return nil
}
