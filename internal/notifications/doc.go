// Package notifications pushes operator alerts to ntfy.
//
// The daemon publishes when the backlog drains and when background work
// fails; `labeldesk test-notify` sends a test message. With no topic
// configured NewService returns a no-op, so callers never branch on whether
// notifications are enabled.
package notifications
