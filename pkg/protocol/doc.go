// Package protocol implements the JSON frame protocol spoken between a
// connected browser tab and a queryguard server over WebSocket.
//
// The browser owns the real history stack. The server owns the guard. Each
// side tells the other what changed: the browser reports its location and
// back/forward navigation, the server asks the browser to push or replace
// entries and publishes the resolved state.
//
// # Wire Format
//
// Every message is one WebSocket text message holding an envelope:
//
//	{"type": "set", "seq": 7, "data": {...}}
//
// seq numbers the sender's own frames. An error reply to a client frame
// echoes that frame's seq in data.replyTo. data depends on type.
//
// # Client → Server
//
//   - hello: first frame; carries the tab's current search string
//   - popstate: the user navigated back or forward
//   - set: partial update; a JSON null value deletes the key
//   - set_queries: replace the typed state
//   - reset: clear owned keys or write defaults
//
// # Server → Client
//
//   - welcome: handshake reply with the session ID
//   - url: push or replace the tab's search string
//   - state: resolved search, raw mapping, typed state and metadata
//   - error: a frame could not be applied
package protocol
