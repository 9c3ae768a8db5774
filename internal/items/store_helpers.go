package items

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

const recordColumns = "id, source_path, content_type, result_json, created_at, updated_at, completed_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id           string
		sourcePath   string
		contentType  sql.NullString
		resultJSON   sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		completedRaw sql.NullString
	)
	if err := scanner.Scan(&id, &sourcePath, &contentType, &resultJSON, &createdRaw, &updatedRaw, &completedRaw); err != nil {
		return nil, err
	}

	record := &Record{
		ID:          id,
		SourcePath:  sourcePath,
		ContentType: contentType.String,
		Result:      Result{},
	}
	if resultJSON.Valid && strings.TrimSpace(resultJSON.String) != "" {
		if err := json.Unmarshal([]byte(resultJSON.String), &record.Result); err != nil {
			return nil, fmt.Errorf("decode result for %s: %w", id, err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			record.CompletedAt = &completed
		}
	}
	return record, nil
}

func encodeResult(result Result) (any, error) {
	if len(result) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// detectContentType prefers the sniffed type and falls back to the file
// extension when sniffing yields nothing image-like.
func detectContentType(path string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
		return byExt
	}
	return sniffed
}
