package items_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"labeldesk/internal/items"
	"labeldesk/internal/testsupport"
)

func TestOpenAppliesMigrationsAndRoundTrips(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	put := testsupport.PutImage(t, cfg, store, "img-1", items.Result{"result": testsupport.Value("cat")})

	fetched, err := store.Get(ctx, "img-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.SourcePath != put.SourcePath {
		t.Fatalf("unexpected source path: %q", fetched.SourcePath)
	}
	if got := fetched.Result["result"]; got == nil || *got != "cat" {
		t.Fatalf("unexpected result: %#v", fetched.Result)
	}
	if fetched.CompletedAt != nil {
		t.Fatal("partial result should not be complete")
	}

	exists, err := store.Exists(ctx, "img-1")
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v", exists, err)
	}
	exists, err = store.Exists(ctx, "nope")
	if err != nil || exists {
		t.Fatalf("Exists(nope) = %v, %v", exists, err)
	}
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, items.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutSetsCompletedAtWhenResultComplete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.PutImage(t, cfg, store, "img-2", nil)
	full := items.Result{
		"result": testsupport.Value("dog"),
		"btn_1":  testsupport.Value("yes"),
		"btn_2":  testsupport.Value("no"),
	}
	if err := store.SaveResult(ctx, "img-2", full); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	record, err := store.Get(ctx, "img-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.CompletedAt == nil {
		t.Fatal("expected CompletedAt once all required fields are set")
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 1 || health.Complete != 1 || health.Incomplete != 0 {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestSaveResultDoesNotRecreateDeletedRecord(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.PutImage(t, cfg, store, "gone", nil)
	if err := store.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	err := store.SaveResult(ctx, "gone", items.Result{"result": testsupport.Value("late")})
	if !errors.Is(err, items.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if exists, err := store.Exists(ctx, "gone"); err != nil || exists {
		t.Fatalf("Exists(gone) = %v, %v", exists, err)
	}
}

func TestSaveResultClearsCompletedAtWhenReopened(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRequiredFields("label"))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.PutImage(t, cfg, store, "r", items.Result{"label": testsupport.Value("x")})
	if err := store.SaveResult(ctx, "r", items.Result{"label": nil}); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	record, err := store.Get(ctx, "r")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.CompletedAt != nil {
		t.Fatalf("CompletedAt = %v, want nil after clearing a required field", record.CompletedAt)
	}
}

func TestListFilters(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRequiredFields("label"))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.PutImage(t, cfg, store, "a", nil)
	testsupport.PutImage(t, cfg, store, "b", items.Result{"label": testsupport.Value("x")})

	incomplete, err := store.List(ctx, items.FilterIncomplete)
	if err != nil {
		t.Fatalf("List incomplete: %v", err)
	}
	if len(incomplete) != 1 || incomplete[0].ID != "a" {
		t.Fatalf("unexpected incomplete list: %+v", incomplete)
	}
	complete, err := store.List(ctx, items.FilterComplete)
	if err != nil {
		t.Fatalf("List complete: %v", err)
	}
	if len(complete) != 1 || complete[0].ID != "b" {
		t.Fatalf("unexpected complete list: %+v", complete)
	}
	all, err := store.List(ctx, items.FilterAll)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected two records, got %d", len(all))
	}
}

func TestFetchBytesCachesAndDataURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	record := testsupport.PutImage(t, cfg, store, "img-3", nil)

	blob, err := store.FetchBytes(ctx, "img-3")
	if err != nil {
		t.Fatalf("FetchBytes: %v", err)
	}
	if blob.ContentType != "image/png" {
		t.Fatalf("unexpected content type: %q", blob.ContentType)
	}
	if !strings.HasPrefix(blob.DataURL(), "data:image/png;base64,") {
		t.Fatalf("unexpected data url prefix: %q", blob.DataURL()[:30])
	}

	// Cached bytes survive the file disappearing until eviction.
	if err := os.Remove(record.SourcePath); err != nil {
		t.Fatalf("remove source: %v", err)
	}
	if _, err := store.FetchBytes(ctx, "img-3"); err != nil {
		t.Fatalf("expected cached FetchBytes to succeed: %v", err)
	}
}

func TestFetchBytesMissingFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	record := &items.Record{ID: "ghost", SourcePath: cfg.Paths.UploadDir + "/ghost.png"}
	if err := store.Put(ctx, record); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := store.FetchBytes(ctx, "ghost"); !errors.Is(err, items.ErrSourceMissing) {
		t.Fatalf("expected ErrSourceMissing, got %v", err)
	}
}

func TestDeleteRemovesRecordAndFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	record := testsupport.PutImage(t, cfg, store, "img-4", nil)
	if _, err := store.FetchBytes(ctx, "img-4"); err != nil {
		t.Fatalf("FetchBytes: %v", err)
	}
	if err := store.Delete(ctx, "img-4"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(record.SourcePath); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err=%v", err)
	}
	if _, err := store.FetchBytes(ctx, "img-4"); !errors.Is(err, items.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "img-4"); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
}

func TestFindBySource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	record := testsupport.PutImage(t, cfg, store, "img-5", nil)
	found, err := store.FindBySource(context.Background(), record.SourcePath)
	if err != nil {
		t.Fatalf("FindBySource: %v", err)
	}
	if found.ID != "img-5" {
		t.Fatalf("unexpected record: %+v", found)
	}
}
