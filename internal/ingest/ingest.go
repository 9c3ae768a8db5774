package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/oklog/ulid/v2"

	"labeldesk/internal/config"
	"labeldesk/internal/fileutil"
	"labeldesk/internal/items"
	"labeldesk/internal/logging"
)

// DefaultExtension is used when an upload's name has no recognised image extension.
const DefaultExtension = ".png"

var allowedExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".bmp":  {},
	".webp": {},
}

// Enqueuer accepts new item ids. dispatch.Engine satisfies it.
type Enqueuer interface {
	EnqueueNew(ctx context.Context, id string, result items.Result) (bool, error)
}

// Pipeline stores incoming images and announces them to the dispatcher.
type Pipeline struct {
	uploadDir string
	maxBytes  int64
	required  []string
	store     *items.Store
	engine    Enqueuer
	logger    *slog.Logger
}

// ScanResult summarizes a startup scan.
type ScanResult struct {
	Registered int
	Enqueued   int
}

// New constructs a pipeline writing into cfg's upload directory.
func New(cfg *config.Config, store *items.Store, engine Enqueuer, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		uploadDir: cfg.Paths.UploadDir,
		maxBytes:  cfg.MaxUploadBytes(),
		required:  append([]string(nil), cfg.Dispatch.RequiredFields...),
		store:     store,
		engine:    engine,
		logger:    logging.NewComponentLogger(logger, "ingest"),
	}
}

// IsImage reports whether name carries a recognised image extension.
func IsImage(name string) bool {
	_, ok := allowedExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Extension returns the lowercased extension used to store name.
func Extension(name string) string {
	if IsImage(name) {
		return strings.ToLower(filepath.Ext(name))
	}
	return DefaultExtension
}

// Save writes r as a new item and enqueues it.
func (p *Pipeline) Save(ctx context.Context, name string, r io.Reader) (*items.Record, error) {
	id, dst := p.newTarget(name)
	size, err := fileutil.WriteAtomic(dst, r, p.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("store upload %q: %w", name, err)
	}
	record, err := p.register(ctx, id, dst)
	if err != nil {
		_ = os.Remove(dst)
		return nil, err
	}
	p.logger.Info("image uploaded",
		logging.String(logging.FieldItemID, id),
		logging.String("original_name", filepath.Base(name)),
		logging.Int64("size_bytes", size),
	)
	return record, nil
}

// AddFile copies an existing image from disk as a new item and enqueues it.
func (p *Pipeline) AddFile(ctx context.Context, path string) (*items.Record, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", path, err)
	}
	id, dst := p.newTarget(abs)
	if err := fileutil.CopyFileVerified(abs, dst, p.maxBytes); err != nil {
		return nil, fmt.Errorf("copy %q: %w", abs, err)
	}
	record, err := p.register(ctx, id, dst)
	if err != nil {
		_ = os.Remove(dst)
		return nil, err
	}
	p.logger.Info("image added from disk",
		logging.String(logging.FieldItemID, id),
		logging.String("source_file", abs),
	)
	return record, nil
}

func (p *Pipeline) newTarget(name string) (string, string) {
	id := strings.ToLower(ulid.Make().String())
	return id, filepath.Join(p.uploadDir, id+Extension(name))
}

func (p *Pipeline) register(ctx context.Context, id, path string) (*items.Record, error) {
	record := &items.Record{
		ID:          id,
		SourcePath:  path,
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Result:      p.emptyResult(),
	}
	if err := p.store.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("record item %s: %w", id, err)
	}
	if _, err := p.engine.EnqueueNew(ctx, id, record.Result); err != nil {
		return nil, fmt.Errorf("enqueue item %s: %w", id, err)
	}
	return record, nil
}

// emptyResult seeds every required field as unanswered.
func (p *Pipeline) emptyResult() items.Result {
	result := make(items.Result, len(p.required))
	for _, field := range p.required {
		result[items.NormalizeField(field)] = nil
	}
	return result
}

// Scan registers image files in the upload directory that have no record yet
// (their file stem becomes the item id) and enqueues every incomplete record.
// Per-file failures are collected; the scan continues past them.
func (p *Pipeline) Scan(ctx context.Context) (ScanResult, error) {
	var (
		result ScanResult
		errs   *multierror.Error
	)

	entries, err := os.ReadDir(p.uploadDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("read upload dir: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if !IsImage(name) {
			continue
		}
		path := filepath.Join(p.uploadDir, name)
		if _, err := p.store.FindBySource(ctx, path); err == nil {
			continue
		} else if !errors.Is(err, items.ErrNotFound) {
			errs = multierror.Append(errs, err)
			continue
		}
		ext := filepath.Ext(name)
		id := strings.TrimSuffix(name, ext)
		if ok, err := p.store.Exists(ctx, id); err != nil {
			errs = multierror.Append(errs, err)
			continue
		} else if ok {
			p.logger.Warn("image file shadows an existing item id; skipping",
				logging.String(logging.FieldItemID, id),
				logging.String("source_file", path),
				logging.String(logging.FieldImpact, "file is not offered to workers"),
			)
			continue
		}
		record := &items.Record{
			ID:          id,
			SourcePath:  path,
			ContentType: mime.TypeByExtension(strings.ToLower(ext)),
			Result:      p.emptyResult(),
		}
		if err := p.store.Put(ctx, record); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("register %s: %w", name, err))
			continue
		}
		result.Registered++
	}

	records, err := p.store.List(ctx, items.FilterIncomplete)
	if err != nil {
		errs = multierror.Append(errs, err)
		return result, errs.ErrorOrNil()
	}
	for _, record := range records {
		added, err := p.engine.EnqueueNew(ctx, record.ID, record.Result)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("enqueue %s: %w", record.ID, err))
			continue
		}
		if added {
			result.Enqueued++
		}
	}

	p.logger.Info("upload directory scanned",
		logging.Int("registered", result.Registered),
		logging.Int("enqueued", result.Enqueued),
		logging.Int("incomplete", len(records)),
	)
	return result, errs.ErrorOrNil()
}
