package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"labeldesk/internal/config"
	"labeldesk/internal/items"
)

// MustOpenStore opens an items.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *items.Store {
	t.Helper()

	store, err := items.Open(cfg)
	if err != nil {
		t.Fatalf("items.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// PutImage writes a small PNG into the upload directory and stores a record for it.
func PutImage(t testing.TB, cfg *config.Config, store *items.Store, id string, result items.Result) *items.Record {
	t.Helper()

	path := filepath.Join(cfg.Paths.UploadDir, id+".png")
	WritePNG(t, path)
	record := &items.Record{ID: id, SourcePath: path, ContentType: "image/png", Result: result}
	if err := store.Put(context.Background(), record); err != nil {
		t.Fatalf("store.Put: %v", err)
	}
	return record
}

// Value returns a pointer to v, for building results inline.
func Value(v string) *string {
	return &v
}
