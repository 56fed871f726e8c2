package query

import (
	"maps"
	"slices"
)

// Raw maps parameter keys to their raw values.
type Raw map[string]Value

// Clone returns a shallow copy of r. A nil Raw clones to an empty one.
func (r Raw) Clone() Raw {
	out := make(Raw, len(r))
	maps.Copy(out, r)
	return out
}

// Keys returns the keys of r in sorted order.
func (r Raw) Keys() []string {
	return slices.Sorted(maps.Keys(r))
}

// Get returns the first value stored under key.
func (r Raw) Get(key string) (string, bool) {
	v, ok := r[key]
	if !ok {
		return "", false
	}
	return v.String(), true
}

// Equal reports whether r and o hold the same keys and values.
func (r Raw) Equal(o Raw) bool {
	return maps.EqualFunc(r, o, Value.Equal)
}

// OmitKeys returns a copy of raw without the named keys.
// Names that are not present are ignored.
func OmitKeys(raw Raw, keys ...string) Raw {
	out := raw.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// PickKeys returns a copy of raw holding only the named keys.
func PickKeys(raw Raw, keys ...string) Raw {
	out := make(Raw, len(keys))
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Merge returns base overlaid with overlay; overlay wins on conflicts.
func Merge(base, overlay Raw) Raw {
	out := base.Clone()
	maps.Copy(out, overlay)
	return out
}
