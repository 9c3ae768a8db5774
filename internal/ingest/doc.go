// Package ingest places uploaded images in the upload directory, records them
// in the item store, and hands their ids to the dispatcher.
//
// Scan rebuilds the dispatcher backlog at startup from the upload directory
// and every record whose result is still incomplete.
package ingest
