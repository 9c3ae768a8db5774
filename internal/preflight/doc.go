// Package preflight provides readiness checks for the filesystem paths and
// network address labeldesk depends on.
//
// The daemon runner calls RunAll before starting and refuses to start when a
// check fails; `labeldesk status` reuses CheckDirectoryAccess to display path
// health while the daemon is running.
package preflight
