// Package errors provides structured, coded errors for queryguard.
//
// Every error carries a code (e.g. "Q101") registered in a central table
// together with its category, a short message and a longer explanation.
// Packages build their exported sentinels from the registry and wrap the
// underlying cause:
//
//	var ErrResolve = errors.New("Q110")
//
//	return errors.New("Q110").Wrap(err)
//
// Two errors with the same code match under the standard errors.Is, so
// callers can test a wrapped failure against the exported sentinel.
//
// # Error Categories
//
//   - capability: an operation needs a host the process does not have
//   - config: the guard, resolver or server was configured incorrectly
//   - resolution: a resolver failed to produce or serialize a value
//   - storage: an adapter or link store failed to persist or load
//   - protocol: a session frame was malformed or unexpected
//   - cli: command line usage errors
//
// Format renders an error for the terminal:
//
//	ERROR Q001: Interactive history host required
//
//	  The history adapter was created from a context that carries no host.
//
//	  Hint: Use adapter.NewMemory for non-interactive environments
package errors
