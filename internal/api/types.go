package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Item describes a stored image in a transport-friendly format.
type Item struct {
	ID          string             `json:"id"`
	SourcePath  string             `json:"sourcePath"`
	ContentType string             `json:"contentType,omitempty"`
	Complete    bool               `json:"complete"`
	Result      map[string]*string `json:"result"`
	CreatedAt   string             `json:"createdAt,omitempty"`
	UpdatedAt   string             `json:"updatedAt,omitempty"`
	CompletedAt string             `json:"completedAt,omitempty"`
}

// ItemListResponse wraps stored items.
type ItemListResponse struct {
	IDs   []string `json:"ids"`
	Count int      `json:"count"`
	Items []Item   `json:"items,omitempty"`
}

// ResultResponse returns a labeling result to the collector. Removed is set
// when the item was complete and has been deleted as a consequence.
type ResultResponse struct {
	ID       string             `json:"id"`
	Complete bool               `json:"complete"`
	Missing  []string           `json:"missing,omitempty"`
	Result   map[string]*string `json:"result"`
	Removed  bool               `json:"removed"`
}

// UploadResponse identifies a newly stored image.
type UploadResponse struct {
	ID   string `json:"id"`
	Item Item   `json:"item"`
}

// SubmitRequest is the body of POST /api/sessions/{id}/submit.
type SubmitRequest struct {
	ItemID string             `json:"itemId"`
	Fields map[string]*string `json:"fields"`
}

// SetResultRequest is the body of POST /api/items/{id}/result. Fields holds
// arbitrary result slots; Result, Btn1 and Btn2 are accepted as shorthand for
// the default fields. A field sent as null is cleared.
type SetResultRequest struct {
	Fields map[string]*string `json:"fields,omitempty"`
	Result *string            `json:"result,omitempty"`
	Btn1   *string            `json:"btn_1,omitempty"`
	Btn2   *string            `json:"btn_2,omitempty"`
}

// Merged flattens the request into a single field map.
func (r SetResultRequest) Merged() map[string]*string {
	out := make(map[string]*string, len(r.Fields)+3)
	for key, value := range r.Fields {
		out[key] = value
	}
	for key, value := range map[string]*string{"result": r.Result, "btn_1": r.Btn1, "btn_2": r.Btn2} {
		if value != nil {
			out[key] = value
		}
	}
	return out
}

// HealthResponse is served unauthenticated at GET /health.
type HealthResponse struct {
	Status    string      `json:"status"`
	Timestamp string      `json:"timestamp"`
	Store     StoreHealth `json:"store"`
}

// StoreHealth counts records by completion.
type StoreHealth struct {
	Total      int `json:"total"`
	Complete   int `json:"complete"`
	Incomplete int `json:"incomplete"`
}

// DispatchStatus summarizes the in-memory assignment state.
type DispatchStatus struct {
	Backlog   int              `json:"backlog"`
	Pending   int              `json:"pending"`
	Assigned  int              `json:"assigned"`
	Completed int              `json:"completed"`
	InFlight  int              `json:"inFlight"`
	Idle      bool             `json:"idle"`
	Sessions  []SessionSummary `json:"sessions"`
}

// SessionSummary describes one connected worker.
type SessionSummary struct {
	ID         string   `json:"id"`
	Current    string   `json:"current,omitempty"`
	History    int      `json:"history"`
	Redelivery []string `json:"redelivery,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	UploadDir    string         `json:"uploadDir"`
	APIAddress   string         `json:"apiAddress,omitempty"`
	Store        StoreHealth    `json:"store"`
	Dispatch     DispatchStatus `json:"dispatch"`
}

// SessionEvent is one server-sent event on a worker stream.
type SessionEvent struct {
	Type      string             `json:"type"`
	SessionID string             `json:"sessionId,omitempty"`
	ItemID    string             `json:"itemId,omitempty"`
	Origin    string             `json:"origin,omitempty"`
	Image     string             `json:"image,omitempty"`
	Result    map[string]*string `json:"result,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	Missing   []string           `json:"missing,omitempty"`
	Count     *int               `json:"count,omitempty"`
}

// EventSession is the first event on every stream and carries the session id.
const EventSession = "session"
