// FILE: secureconfig/value.go
package secureconfig

import (
	"reflect"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNil Kind = iota
	KindString
	KindNumber
	KindBool
	KindNested
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindNested:
		return "nested"
	default:
		return "unknown"
	}
}

// Value is a tagged variant over the payload types a configuration key can
// hold. Transformers and validators receive Values so they can switch on
// Kind instead of type-asserting raw interfaces.
type Value struct {
	raw any
}

// ValueOf wraps an arbitrary payload in a Value.
func ValueOf(v any) Value {
	return Value{raw: v}
}

// Raw returns the underlying payload.
func (v Value) Raw() any {
	return v.raw
}

// Kind reports the variant of the payload.
func (v Value) Kind() Kind {
	if v.raw == nil {
		return KindNil
	}
	switch v.raw.(type) {
	case string:
		return KindString
	case bool:
		return KindBool
	case map[string]any:
		return KindNested
	}
	switch reflect.ValueOf(v.raw).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindNumber
	}
	return KindNil
}

// AsString returns the payload as a string. Numbers and booleans are
// formatted; nested values report false.
func (v Value) AsString() (string, bool) {
	switch val := v.raw.(type) {
	case string:
		return val, true
	case []byte:
		return string(val), true
	case bool:
		return strconv.FormatBool(val), true
	}

	rv := reflect.ValueOf(v.raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	}
	return "", false
}

// AsNumber returns the payload as a float64. Parsable strings and booleans
// convert; nested values report false.
func (v Value) AsNumber() (float64, bool) {
	if v.raw == nil {
		return 0, false
	}

	rv := reflect.ValueOf(v.raw)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.String:
		if f, err := strconv.ParseFloat(rv.String(), 64); err == nil {
			return f, true
		}
		return 0, false
	case reflect.Bool:
		if rv.Bool() {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// AsBool returns the payload as a bool. Numeric payloads interpret zero as
// false, non-zero as true; parsable strings convert.
func (v Value) AsBool() (bool, bool) {
	if v.raw == nil {
		return false, false
	}

	rv := reflect.ValueOf(v.raw)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), true
	case reflect.String:
		if b, err := strconv.ParseBool(rv.String()); err == nil {
			return b, true
		}
		return false, false
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0, true
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0, true
	}
	return false, false
}

// AsNested returns the payload as a nested map.
func (v Value) AsNested() (map[string]any, bool) {
	m, ok := v.raw.(map[string]any)
	return m, ok
}

// IsEmpty reports whether the payload is nil or an empty string. Required-key
// validation treats both as missing.
func (v Value) IsEmpty() bool {
	if v.raw == nil {
		return true
	}
	s, ok := v.raw.(string)
	return ok && s == ""
}
