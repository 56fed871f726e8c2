package guard

import (
	"slices"

	"github.com/vango-dev/queryguard/pkg/query"
)

// ResolveInput is passed to Resolver.Resolve.
type ResolveInput struct {
	Search string
	Raw    query.Raw
}

// Issue is a recoverable validation or coercion problem.
type Issue struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Meta describes the outcome of the last resolve.
type Meta struct {
	UsedDefault bool     `json:"usedDefault,omitempty"`
	Issues      []Issue  `json:"issues,omitempty"`
	CoercedKeys []string `json:"coercedKeys,omitempty"`
	CleanedKeys []string `json:"cleanedKeys,omitempty"`
}

// HasIssues reports whether the resolve reported any issue.
func (m Meta) HasIssues() bool {
	return len(m.Issues) > 0
}

func (m Meta) clone() Meta {
	return Meta{
		UsedDefault: m.UsedDefault,
		Issues:      slices.Clone(m.Issues),
		CoercedKeys: slices.Clone(m.CoercedKeys),
		CleanedKeys: slices.Clone(m.CleanedKeys),
	}
}

// Resolved is the result of Resolver.Resolve. A nil Meta means no metadata.
type Resolved[V any] struct {
	Value map[string]V
	Meta  *Meta
}

// Resolver converts raw parameters into typed state and back.
//
// Resolve must report recoverable problems through Meta.Issues and return a
// best-effort value. A returned error means no value can be produced at all
// and is propagated to the caller of the guard operation.
//
// Serialize must be deterministic. It does not need to be an exact inverse
// of Resolve.
type Resolver[V any] interface {
	Resolve(in ResolveInput) (Resolved[V], error)
	Serialize(value map[string]V) (query.Raw, error)
}

// ResolverFuncs adapts a pair of functions to the Resolver interface.
type ResolverFuncs[V any] struct {
	ResolveFunc   func(in ResolveInput) (Resolved[V], error)
	SerializeFunc func(value map[string]V) (query.Raw, error)
}

// Resolve calls ResolveFunc.
func (f ResolverFuncs[V]) Resolve(in ResolveInput) (Resolved[V], error) {
	return f.ResolveFunc(in)
}

// Serialize calls SerializeFunc.
func (f ResolverFuncs[V]) Serialize(value map[string]V) (query.Raw, error) {
	return f.SerializeFunc(value)
}
