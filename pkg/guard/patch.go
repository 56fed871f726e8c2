package guard

import (
	"maps"
	"slices"
)

// Patch is a partial update of typed state.
//
// Set overwrites a key; Delete removes it from the typed state and from the
// search string. A key that is not mentioned is left alone. Operations apply
// in the order they were added.
type Patch[V any] struct {
	ops []patchOp[V]
}

type patchOp[V any] struct {
	key    string
	value  V
	delete bool
}

// NewPatch returns an empty patch.
func NewPatch[V any]() *Patch[V] {
	return &Patch[V]{}
}

// PatchOf returns a patch setting every entry of values.
func PatchOf[V any](values map[string]V) *Patch[V] {
	p := NewPatch[V]()
	for _, k := range slices.Sorted(maps.Keys(values)) {
		p.Set(k, values[k])
	}
	return p
}

// Set overwrites key with value.
func (p *Patch[V]) Set(key string, value V) *Patch[V] {
	p.ops = append(p.ops, patchOp[V]{key: key, value: value})
	return p
}

// Delete removes keys.
func (p *Patch[V]) Delete(keys ...string) *Patch[V] {
	for _, k := range keys {
		p.ops = append(p.ops, patchOp[V]{key: k, delete: true})
	}
	return p
}

// Len returns the number of operations.
func (p *Patch[V]) Len() int {
	if p == nil {
		return 0
	}
	return len(p.ops)
}

// apply returns a patched copy of prev and the keys deleted along the way.
func (p *Patch[V]) apply(prev map[string]V) (map[string]V, []string) {
	next := cloneValues(prev)
	if p == nil {
		return next, nil
	}
	var deleted []string
	for _, op := range p.ops {
		if op.delete {
			delete(next, op.key)
			deleted = append(deleted, op.key)
			continue
		}
		next[op.key] = op.value
	}
	return next, deleted
}
