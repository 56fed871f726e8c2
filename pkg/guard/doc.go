// Package guard keeps typed state synchronized with a search string.
//
// A Guard sits between an Adapter, which reads, writes and watches the raw
// search string of some host (a browser session, a file, memory), and a
// Resolver, which converts raw parameters into typed state and back:
//
//	g, err := guard.New(guard.Options[any]{
//	    Adapter:  adapter.NewMemory("?page=2"),
//	    Resolver: resolver.Passthrough(),
//	    Default:  map[string]any{"page": "1", "q": ""},
//	})
//
//	queries, _ := g.Queries()           // map[page:2]
//	_ = g.Set(guard.NewPatch[any]().Set("q", "go"))
//	_ = g.Set(guard.NewPatch[any]().Delete("page"), guard.Push)
//
// # Caching
//
// The guard caches the last observed search string together with its raw
// mapping, typed value and resolve metadata. Every read first compares the
// adapter's current search string with the cached one and only runs the
// resolver when they differ.
//
// # Owned Keys
//
// The keys of the default value are the keys this guard owns. With the Drop
// unknown-key policy, writes discard every key the guard does not own. Reset
// in its default clear mode removes only owned keys, whatever the policy.
//
// # Notifications
//
// Subscribers are called after every recompute triggered by an adapter
// notification and after every write. Listeners run without any guard lock
// held and may write back into the guard.
package guard
