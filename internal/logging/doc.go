// Package logging assembles structured slog loggers and formatting helpers used
// across labeldesk.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and defines the field keys (component, item_id, session_id) that the
// console handler lifts into each line's header. TeeLogger fans a logger out to
// additional handlers, which the daemon uses to mirror output into a per-run
// log file. A no-op logger is provided for tests and wiring code.
package logging
