package query

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Value is a raw parameter value: a single string or an ordered list.
// The zero Value is the single empty string, like One("").
type Value struct {
	vals []string
	list bool
}

// One returns a single-valued Value.
func One(s string) Value {
	return Value{vals: []string{s}}
}

// Many returns a list Value. The slice is copied.
func Many(vs ...string) Value {
	return Value{vals: slices.Clone(vs), list: true}
}

// IsList reports whether v was built as a list.
func (v Value) IsList() bool {
	return v.list
}

// IsEmpty reports whether v is a list with no elements.
// Such values encode to nothing and vanish on the next decode.
func (v Value) IsEmpty() bool {
	return v.list && len(v.vals) == 0
}

// items returns the values, reading a zero single Value as [""].
func (v Value) items() []string {
	if !v.list && len(v.vals) == 0 {
		return []string{""}
	}
	return v.vals
}

// String returns the first value, or "" for an empty list.
func (v Value) String() string {
	if len(v.vals) == 0 {
		return ""
	}
	return v.vals[0]
}

// Strings returns a copy of all values.
func (v Value) Strings() []string {
	return slices.Clone(v.items())
}

// Len returns the number of values.
func (v Value) Len() int {
	return len(v.items())
}

// Equal reports whether v and o have the same shape and values.
func (v Value) Equal(o Value) bool {
	if v.list != o.list {
		return false
	}
	return slices.Equal(v.items(), o.items())
}

// GoString makes test failures readable.
func (v Value) GoString() string {
	if v.list {
		return fmt.Sprintf("query.Many(%q...)", v.vals)
	}
	return fmt.Sprintf("query.One(%q)", v.String())
}

// MarshalJSON encodes a single value as a string and a list as an array.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.list {
		if v.vals == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.vals)
	}
	return json.Marshal(v.String())
}

// UnmarshalJSON accepts a string or an array of strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = One(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("query: value must be a string or an array of strings: %w", err)
	}
	*v = Many(list...)
	return nil
}
