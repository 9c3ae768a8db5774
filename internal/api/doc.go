// Package api defines wire-format types and converters for the HTTP and IPC
// layers. It translates item records and dispatch state into DTOs that the
// worker front end and the CLI can render without importing internal types.
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Session stream events carry the image as a data URL so a browser can show
// it without a second request.
package api
