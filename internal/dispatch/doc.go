// Package dispatch decides which worker session labels which image.
//
// The Engine owns every work item, the shared backlog, and the connected
// sessions. One goroutine started by Run applies all events (connect, ready,
// submit, skip, previous, disconnect, enqueue, operator result edits) in
// arrival order, so the
// single-holder rule is enforced without locks. Checking an item against the
// store is the only step that leaves that goroutine; its outcome comes back as
// another event and is re-validated before anything is committed, because the
// session may have moved on or disconnected in the meantime.
//
// Outbound events go through a Notifier. Hub is the in-process implementation
// used by the HTTP session transport: one bounded channel per session.
// Broadcasts are best effort; direct sends wait briefly for a slow reader.
package dispatch
