// Package sanitize turns arbitrary Go values into data that encoding/json
// can always encode.
package sanitize

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"
)

// MaxDepth bounds recursion. Anything nested deeper is rendered as text.
const MaxDepth = 32

// Mapper is implemented by events that know their own mapping form.
type Mapper interface {
	ToMap() (map[string]any, error)
}

// JSONer is implemented by values that render themselves as JSON text.
type JSONer interface {
	ToJSON() (string, error)
}

var timeType = reflect.TypeOf(time.Time{})

// Event sanitizes v and guarantees an object at the top level.
func Event(v any) map[string]any {
	out := Value(v)
	if m, ok := out.(map[string]any); ok {
		return m
	}
	return map[string]any{"value": out}
}

// Value converts v into nil, bool, float64, int64/uint64, string,
// []any or map[string]any. It never panics.
func Value(v any) any {
	return value(v, 0)
}

func value(v any, depth int) any {
	if depth > MaxDepth {
		return fmt.Sprintf("<%T: too deep>", v)
	}

	switch x := v.(type) {
	case nil:
		return nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr:
		return x
	case float32:
		return float(float64(x))
	case float64:
		return float(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case json.RawMessage:
		return rawJSON(string(x), depth)
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		if rv.Type().Elem() == timeType {
			return value(rv.Elem().Interface(), depth)
		}
	case reflect.Map:
		if rv.IsNil() {
			return map[string]any{}
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[text(iter.Key().Interface())] = value(iter.Value().Interface(), depth+1)
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = value(rv.Index(i).Interface(), depth+1)
		}
		return out
	}

	if m, ok := v.(Mapper); ok {
		if out, ok := viaMapper(m, depth); ok {
			return out
		}
		return text(v)
	}
	if j, ok := v.(JSONer); ok {
		if out, ok := viaJSONer(j, depth); ok {
			return out
		}
		return text(v)
	}
	if j, ok := v.(json.Marshaler); ok {
		if out, ok := viaMarshaler(j, depth); ok {
			return out
		}
		return text(v)
	}

	// Named scalar types (type Kind string, time.Duration, ...) keep their
	// String() form when they have one.
	if _, ok := v.(fmt.Stringer); !ok {
		switch rv.Kind() {
		case reflect.String:
			return rv.String()
		case reflect.Bool:
			return rv.Bool()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return rv.Uint()
		case reflect.Float32, reflect.Float64:
			return float(rv.Float())
		}
	}

	if rv.Kind() == reflect.Pointer {
		elem := rv.Elem()
		if elem.Kind() != reflect.Struct {
			return value(elem.Interface(), depth+1)
		}
	}

	return text(v)
}

func float(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Sprint(f)
	}
	return f
}

func viaMapper(m Mapper, depth int) (out any, ok bool) {
	defer func() {
		if recover() != nil {
			out, ok = nil, false
		}
	}()

	mm, err := m.ToMap()
	if err != nil {
		return nil, false
	}
	return value(mm, depth+1), true
}

func viaJSONer(j JSONer, depth int) (out any, ok bool) {
	defer func() {
		if recover() != nil {
			out, ok = nil, false
		}
	}()

	raw, err := j.ToJSON()
	if err != nil {
		return nil, false
	}
	return rawJSON(raw, depth), true
}

func viaMarshaler(j json.Marshaler, depth int) (out any, ok bool) {
	defer func() {
		if recover() != nil {
			out, ok = nil, false
		}
	}()

	raw, err := j.MarshalJSON()
	if err != nil {
		return nil, false
	}
	return rawJSON(string(raw), depth), true
}

func rawJSON(raw string, depth int) any {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return raw
	}
	return value(parsed, depth+1)
}

// text is the last resort and cannot fail.
func text(v any) (s string) {
	if cyclic(reflect.ValueOf(v), map[visit]bool{}, 0) {
		return fmt.Sprintf("<%T: cycle>", v)
	}
	defer func() {
		if recover() != nil {
			s = diagnostic(v)
		}
	}()
	return fmt.Sprint(v)
}

func diagnostic(v any) (s string) {
	defer func() {
		if recover() != nil {
			s = fmt.Sprintf("<%T>", v)
		}
	}()
	return fmt.Sprintf("%#v", v)
}

type visit struct {
	ptr uintptr
	typ reflect.Type
}

// cyclic reports whether fmt would recurse without bound on rv. fmt prints
// nested pointers as addresses, so only a top-level pointer is followed.
func cyclic(rv reflect.Value, path map[visit]bool, depth int) bool {
	if depth > MaxDepth {
		return true
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return false
		}
		if rv.Kind() == reflect.Pointer && depth > 0 {
			return false
		}
		k := visit{rv.Pointer(), rv.Type()}
		if path[k] {
			return true
		}
		path[k] = true
		defer delete(path, k)
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return cyclic(rv.Elem(), path, depth+1)
	case reflect.Struct:
		for i := range rv.NumField() {
			if cyclic(rv.Field(i), path, depth+1) {
				return true
			}
		}
	case reflect.Slice, reflect.Array:
		for i := range rv.Len() {
			if cyclic(rv.Index(i), path, depth+1) {
				return true
			}
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if cyclic(iter.Key(), path, depth+1) || cyclic(iter.Value(), path, depth+1) {
				return true
			}
		}
	}
	return false
}
