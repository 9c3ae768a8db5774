// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// The wire types reuse the HTTP API DTOs where they overlap so both surfaces
// describe items and status the same way.
package ipc
