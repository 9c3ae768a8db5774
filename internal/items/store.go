package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/jellydator/ttlcache/v3"
	_ "modernc.org/sqlite"

	"labeldesk/internal/config"
)

// Store persists item metadata in SQLite and serves image bytes from the
// upload directory through a short-lived cache.
type Store struct {
	db       *sql.DB
	path     string
	required []string
	blobs    *ttlcache.Cache[string, *Blob]
}

// Open initializes or connects to the item database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	blobs := ttlcache.New[string, *Blob](
		ttlcache.WithTTL[string, *Blob](cfg.ByteCacheTTL()),
		ttlcache.WithCapacity[string, *Blob](uint64(cfg.Dispatch.ByteCacheMaxItems)),
	)
	go blobs.Start()

	store := &Store{
		db:       db,
		path:     dbPath,
		required: append([]string(nil), cfg.Dispatch.RequiredFields...),
		blobs:    blobs,
	}
	if err := store.applyMigrations(context.Background()); err != nil {
		store.blobs.Stop()
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close stops the byte cache and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.blobs.Stop()
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// RequiredFields returns the fields that make a result complete.
func (s *Store) RequiredFields() []string {
	return append([]string(nil), s.required...)
}

// Get fetches a record by id. Missing records return ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM items WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return record, nil
}

// Exists reports whether metadata for id is present.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM items WHERE id = ?`, id).Scan(&count); err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return count > 0, nil
}

// Put inserts or replaces a record. CompletedAt is derived from the result.
func (s *Store) Put(ctx context.Context, record *Record) error {
	if record == nil {
		return errors.New("record is nil")
	}
	if record.ID == "" {
		return errors.New("record id is empty")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.Result.Complete(s.required) {
		if record.CompletedAt == nil {
			record.CompletedAt = &now
		}
	} else {
		record.CompletedAt = nil
	}
	resultJSON, err := encodeResult(record.Result)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO items (id, source_path, content_type, result_json, created_at, updated_at, completed_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             source_path = excluded.source_path,
             content_type = excluded.content_type,
             result_json = excluded.result_json,
             updated_at = excluded.updated_at,
             completed_at = excluded.completed_at`,
		record.ID,
		record.SourcePath,
		nullableString(record.ContentType),
		resultJSON,
		record.CreatedAt.Format(time.RFC3339Nano),
		record.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(record.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("put item %s: %w", record.ID, err)
	}
	return nil
}

// SaveResult replaces only the result of an existing record. Deleted records
// stay deleted and return ErrNotFound.
func (s *Store) SaveResult(ctx context.Context, id string, result Result) error {
	resultJSON, err := encodeResult(result)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE items SET
             result_json = ?,
             updated_at = ?,
             completed_at = CASE WHEN ? THEN COALESCE(completed_at, ?) ELSE NULL END
         WHERE id = ?`,
		resultJSON,
		now,
		result.Complete(s.required),
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("save result %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save result %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("save result %s: %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes the record and its image file. Deleting an unknown id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	record, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	s.blobs.Delete(id)
	if err := os.Remove(record.SourcePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove source %s: %w", record.SourcePath, err)
	}
	return nil
}

// FetchBytes loads the image for id, serving repeated reads from the cache.
func (s *Store) FetchBytes(ctx context.Context, id string) (*Blob, error) {
	if cached := s.blobs.Get(id); cached != nil {
		return cached.Value(), nil
	}
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(record.SourcePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("fetch %s: %w", id, ErrSourceMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("read source %s: %w", record.SourcePath, err)
	}
	contentType := record.ContentType
	if contentType == "" {
		contentType = detectContentType(record.SourcePath, data)
	}
	blob := &Blob{ContentType: contentType, Data: data}
	s.blobs.Set(id, blob, ttlcache.DefaultTTL)
	return blob, nil
}

// FindBySource returns the record stored for an image path.
func (s *Store) FindBySource(ctx context.Context, sourcePath string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM items WHERE source_path = ? LIMIT 1`, sourcePath)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find %s: %w", sourcePath, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find by source: %w", err)
	}
	return record, nil
}

// List returns records in upload order.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM items`
	switch filter {
	case FilterIncomplete:
		query += ` WHERE completed_at IS NULL`
	case FilterComplete:
		query += ` WHERE completed_at IS NOT NULL`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return records, nil
}

// Health counts stored records by completion.
func (s *Store) Health(ctx context.Context) (Health, error) {
	var health Health
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1), COALESCE(SUM(CASE WHEN completed_at IS NOT NULL THEN 1 ELSE 0 END), 0) FROM items`)
	if err := row.Scan(&health.Total, &health.Complete); err != nil {
		return Health{}, fmt.Errorf("health: %w", err)
	}
	health.Incomplete = health.Total - health.Complete
	return health, nil
}
