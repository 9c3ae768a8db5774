package ingest_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"labeldesk/internal/fileutil"
	"labeldesk/internal/ingest"
	"labeldesk/internal/items"
	"labeldesk/internal/testsupport"
)

type recordingEnqueuer struct {
	mu   sync.Mutex
	seen map[string]bool
	ids  []string
}

func (r *recordingEnqueuer) EnqueueNew(_ context.Context, id string, _ items.Result) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = make(map[string]bool)
	}
	if r.seen[id] {
		return false, nil
	}
	r.seen[id] = true
	r.ids = append(r.ids, id)
	return true, nil
}

func TestExtensionFallsBackToPNG(t *testing.T) {
	cases := map[string]string{
		"photo.JPG":   ".jpg",
		"scan.webp":   ".webp",
		"archive.zip": ".png",
		"noext":       ".png",
	}
	for name, want := range cases {
		if got := ingest.Extension(name); got != want {
			t.Fatalf("Extension(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestSaveStoresRecordsAndEnqueues(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	enq := &recordingEnqueuer{}
	pipeline := ingest.New(cfg, store, enq, nil)

	record, err := pipeline.Save(context.Background(), "cat.GIF", bytes.NewReader(testsupport.PNGBytes()))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Ext(record.SourcePath) != ".gif" {
		t.Fatalf("source path = %s", record.SourcePath)
	}
	if _, err := os.Stat(record.SourcePath); err != nil {
		t.Fatalf("stat upload: %v", err)
	}
	stored, err := store.Get(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.IsComplete(cfg.Dispatch.RequiredFields) {
		t.Fatal("new upload should be incomplete")
	}
	if len(enq.ids) != 1 || enq.ids[0] != record.ID {
		t.Fatalf("enqueued = %v", enq.ids)
	}
}

func TestSaveRejectsOversize(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxUploadMiB(1))
	store := testsupport.MustOpenStore(t, cfg)
	enq := &recordingEnqueuer{}
	pipeline := ingest.New(cfg, store, enq, nil)

	big := strings.NewReader(strings.Repeat("x", (1<<20)+1))
	_, err := pipeline.Save(context.Background(), "big.png", big)
	if !errors.Is(err, fileutil.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	health, err := store.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 0 || len(enq.ids) != 0 {
		t.Fatalf("oversize upload recorded: health=%+v enqueued=%v", health, enq.ids)
	}
}

func TestAddFileCopiesSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	enq := &recordingEnqueuer{}
	pipeline := ingest.New(cfg, store, enq, nil)

	src := filepath.Join(testsupport.BaseDir(cfg), "incoming", "dog.jpeg")
	testsupport.WritePNG(t, src)

	record, err := pipeline.AddFile(context.Background(), src)
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if filepath.Dir(record.SourcePath) != cfg.Paths.UploadDir {
		t.Fatalf("copy landed in %s", record.SourcePath)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("source should be left in place: %v", err)
	}
	if len(enq.ids) != 1 {
		t.Fatalf("enqueued = %v", enq.ids)
	}
}

func TestScanRegistersFilesAndEnqueuesIncomplete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.PutImage(t, cfg, store, "known", nil)
	done := items.Result{}
	for _, field := range cfg.Dispatch.RequiredFields {
		done[field] = testsupport.Value("ok")
	}
	testsupport.PutImage(t, cfg, store, "finished", done)
	testsupport.WritePNG(t, filepath.Join(cfg.Paths.UploadDir, "orphan.png"))
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.UploadDir, "Scanned.JPG"), 4)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.UploadDir, "notes.txt"), 4)

	enq := &recordingEnqueuer{}
	pipeline := ingest.New(cfg, store, enq, nil)
	result, err := pipeline.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Registered != 2 || result.Enqueued != 3 {
		t.Fatalf("result = %+v", result)
	}
	if !enq.seen["known"] || !enq.seen["orphan"] || !enq.seen["Scanned"] || enq.seen["finished"] {
		t.Fatalf("enqueued = %v", enq.ids)
	}
	for id, want := range map[string]string{"orphan": "image/png", "Scanned": "image/jpeg"} {
		record, err := store.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get %s: %v", id, err)
		}
		if record.ContentType != want {
			t.Fatalf("%s content type = %q, want %q", id, record.ContentType, want)
		}
	}

	again, err := pipeline.Scan(ctx)
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if again.Registered != 0 || again.Enqueued != 0 {
		t.Fatalf("second scan = %+v", again)
	}
}
