// Package resolver provides guard.Resolver implementations.
//
// Passthrough exposes raw values unchanged. Schema coerces declared fields,
// applies bounds and cross-field rules written in expr, and falls back to a
// default value when anything is wrong. Struct binds query-tagged structs
// and validates them with validator tags.
//
// All three report recoverable problems through guard.Meta and reserve
// returned errors for misconfiguration.
package resolver
