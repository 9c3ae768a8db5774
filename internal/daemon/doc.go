// Package daemon coordinates the long-running labeldesk process.
//
// It wires configuration, the item store, the dispatch engine and its
// notification hub, the upload pipeline, and the HTTP API into a single
// lifecycle with flock-based locking to prevent multiple instances. Worker
// sessions connect over a server-sent event stream and act through small
// POST endpoints; operators upload images and collect results through the
// token-protected routes.
//
// Keep orchestration here: assignment rules belong to internal/dispatch and
// storage to internal/items.
package daemon
