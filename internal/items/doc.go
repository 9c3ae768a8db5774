// Package items persists uploaded image metadata in SQLite and serves the
// image bytes workers label.
//
// A Record ties an opaque item id to its file in the upload directory and to
// the labeling Result collected so far. The Store derives completion from the
// configured required fields, so CompletedAt always agrees with the result.
// FetchBytes reads the file and keeps it in a TTL cache, since the dispatcher
// re-reads the same image whenever an item is redelivered.
//
// The database is the durable side of the system; assignment state lives only
// in the dispatcher and is rebuilt from incomplete records at startup.
package items
