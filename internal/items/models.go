package items

import (
	"encoding/base64"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

var fieldFolder = cases.Fold()

// NormalizeField canonicalizes a result field name so "BTN_1" and " btn_1 "
// address the same slot.
func NormalizeField(name string) string {
	return fieldFolder.String(strings.TrimSpace(name))
}

// Result maps result field names to values. A nil value means the field has
// not been answered yet.
type Result map[string]*string

// Clone returns a deep copy.
func (r Result) Clone() Result {
	if r == nil {
		return Result{}
	}
	out := make(Result, len(r))
	for key, value := range r {
		if value == nil {
			out[key] = nil
			continue
		}
		v := *value
		out[key] = &v
	}
	return out
}

// Merge returns a copy of r with fields applied on top. Field names are
// normalized; a field present with a nil value clears the slot.
func (r Result) Merge(fields map[string]*string) Result {
	out := r.Clone()
	for key, value := range fields {
		name := NormalizeField(key)
		if name == "" {
			continue
		}
		if value == nil {
			out[name] = nil
			continue
		}
		v := *value
		out[name] = &v
	}
	return out
}

// Missing lists required fields that are absent or nil, in required order.
func (r Result) Missing(required []string) []string {
	var missing []string
	for _, field := range required {
		if value, ok := r[NormalizeField(field)]; !ok || value == nil {
			missing = append(missing, field)
		}
	}
	return missing
}

// Complete reports whether every required field is present and non-nil.
func (r Result) Complete(required []string) bool {
	return len(r.Missing(required)) == 0
}

// Fields returns the populated field names in sorted order.
func (r Result) Fields() []string {
	names := make([]string, 0, len(r))
	for key, value := range r {
		if value != nil {
			names = append(names, key)
		}
	}
	slices.Sort(names)
	return names
}

// Record is the durable metadata for one uploaded image.
type Record struct {
	ID          string
	SourcePath  string
	ContentType string
	Result      Result
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// IsComplete reports whether the stored result satisfies required.
func (r *Record) IsComplete(required []string) bool {
	return r != nil && r.Result.Complete(required)
}

// Blob is the encoded payload delivered to workers.
type Blob struct {
	ContentType string
	Data        []byte
}

// DataURL renders the blob as a base64 data URL suitable for an <img> src.
func (b *Blob) DataURL() string {
	if b == nil {
		return ""
	}
	contentType := b.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(b.Data)
}

// Filter selects which records List returns.
type Filter string

const (
	FilterAll        Filter = ""
	FilterIncomplete Filter = "incomplete"
	FilterComplete   Filter = "complete"
)

// Health summarizes the store contents.
type Health struct {
	Total      int
	Complete   int
	Incomplete int
}
