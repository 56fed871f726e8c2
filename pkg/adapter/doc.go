// Package adapter provides guard.Adapter implementations.
//
//   - History is the reference adapter for interactive hosts such as a
//     connected browser session. It only works when a history.Host is
//     available and fails at construction otherwise.
//   - Memory keeps the search string in process. Use it in tests, for
//     server-side rendering and anywhere no real host exists.
//   - File stores the search string in a file and watches it for changes
//     made by other processes.
//
// All adapters notify their own subscribers after SetSearch, so a guard
// observes its own writes even when the host emits no event for them.
package adapter
