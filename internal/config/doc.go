// Package config loads, normalizes, and validates labeldesk configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// LABELDESK_API_TOKEN and NTFY_TOPIC. The Config type centralizes the knobs the
// daemon and CLI need: where uploads live, which result fields make an image
// complete, and how long the dispatcher waits on the item store.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
