package resolver

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/vango-dev/queryguard/pkg/guard"
	"github.com/vango-dev/queryguard/pkg/query"
)

// Passthrough returns a resolver that exposes raw values as typed state:
// a single value as string and a list as []string. It never reports issues.
func Passthrough() guard.Resolver[any] {
	return guard.ResolverFuncs[any]{
		ResolveFunc: func(in guard.ResolveInput) (guard.Resolved[any], error) {
			out := make(map[string]any, len(in.Raw))
			for k, v := range in.Raw {
				if v.IsList() {
					out[k] = v.Strings()
				} else {
					out[k] = v.String()
				}
			}
			return guard.Resolved[any]{Value: out}, nil
		},
		SerializeFunc: ToRaw[any],
	}
}

// ToRaw converts typed state to raw values.
//
// Nil values are skipped. Strings, numbers and booleans are formatted.
// Slices and arrays become lists of formatted elements. Anything else is
// JSON-encoded.
func ToRaw[V any](value map[string]V) (query.Raw, error) {
	raw := make(query.Raw, len(value))
	for k, v := range value {
		rv := reflect.ValueOf(v)
		if isNil(rv) {
			continue
		}
		rv = indirect(rv)

		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			items := make([]string, 0, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				s, err := formatScalar(rv.Index(i))
				if err != nil {
					return nil, fmt.Errorf("resolver: key %q: %w", k, err)
				}
				items = append(items, s)
			}
			raw[k] = query.Many(items...)
		default:
			s, err := formatScalar(rv)
			if err != nil {
				return nil, fmt.Errorf("resolver: key %q: %w", k, err)
			}
			raw[k] = query.One(s)
		}
	}
	return raw, nil
}

func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v
		}
		v = v.Elem()
	}
	return v
}

// formatScalar renders v as a raw value. Composite values are JSON-encoded.
func formatScalar(v reflect.Value) (string, error) {
	v = indirect(v)
	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, v.Type().Bits()), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	case reflect.Invalid:
		return "", nil
	}
	data, err := json.Marshal(v.Interface())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// parseInto sets v from s.
func parseInto(v reflect.Value, s string) error {
	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(i)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(b)
	default:
		return fmt.Errorf("unsupported type: %v", v.Kind())
	}
	return nil
}
