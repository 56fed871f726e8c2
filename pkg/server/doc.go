// Package server exposes query guards to browsers over WebSocket.
//
// Each connection is a Session. The session is the interactive history host
// for one browser tab: it mirrors the tab's location, turns guard writes
// into url frames that tell the tab to push or replace its history entry,
// and turns the tab's popstate frames into history traversal signals. A
// per-session guard.Guard, built through adapter.NewHistory with the session
// carried in the context, resolves the location into typed state which is
// published as state frames.
//
// # Connection Lifecycle
//
//	client                      server
//	  | hello{search} ------------> |  create host, adapter, guard
//	  | <------------ welcome{id}   |
//	  | <------------ state{...}    |
//	  | set{patch} --------------->  |  guard.Set
//	  | <------------ url{search}   |  host.ReplaceState / PushState
//	  | <------------ state{...}    |  guard listener
//	  | popstate{search} --------> |  host popstate listeners
//	  | <------------ state{...}    |
//
// A frame that cannot be applied produces a non-fatal error frame; the
// session stays open. A missing hello is fatal.
//
// # HTTP Routes
//
//	GET  /ws        WebSocket endpoint
//	GET  /healthz   liveness and session count
//	GET  /metrics   Prometheus metrics, when a gatherer is configured
//	POST /links     store a permalink for {"search": "..."}
//	GET  /l/{id}    redirect to the base URL with the stored search string
//
// # Usage
//
//	srv, err := server.New(server.Options{
//	    Config:   cfg,
//	    Resolver: schema,
//	    Default:  defaults,
//	    Links:    store,
//	})
//	if err != nil {
//	    return err
//	}
//	return srv.Run(ctx)
package server
