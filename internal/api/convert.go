package api

import (
	"time"

	"labeldesk/internal/dispatch"
	"labeldesk/internal/items"
)

// FromRecord converts a stored record to its API representation.
func FromRecord(record *items.Record, required []string) Item {
	if record == nil {
		return Item{}
	}
	dto := Item{
		ID:          record.ID,
		SourcePath:  record.SourcePath,
		ContentType: record.ContentType,
		Complete:    record.IsComplete(required),
		Result:      record.Result.Clone(),
	}
	if !record.CreatedAt.IsZero() {
		dto.CreatedAt = record.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !record.UpdatedAt.IsZero() {
		dto.UpdatedAt = record.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	if record.CompletedAt != nil {
		dto.CompletedAt = record.CompletedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromRecords converts a record list, keeping ids in the same order.
func FromRecords(records []*items.Record, required []string, detailed bool) ItemListResponse {
	resp := ItemListResponse{IDs: make([]string, 0, len(records)), Count: len(records)}
	for _, record := range records {
		resp.IDs = append(resp.IDs, record.ID)
		if detailed {
			resp.Items = append(resp.Items, FromRecord(record, required))
		}
	}
	return resp
}

// FromHealth converts store counts.
func FromHealth(h items.Health) StoreHealth {
	return StoreHealth{Total: h.Total, Complete: h.Complete, Incomplete: h.Incomplete}
}

// NewHealthResponse reports a healthy daemon at now.
func NewHealthResponse(h items.Health, now time.Time) HealthResponse {
	return HealthResponse{
		Status:    "healthy",
		Timestamp: now.UTC().Format(dateTimeFormat),
		Store:     FromHealth(h),
	}
}

// FromSnapshot summarizes engine state.
func FromSnapshot(snap dispatch.Snapshot) DispatchStatus {
	counts := snap.Counts()
	status := DispatchStatus{
		Backlog:   len(snap.Backlog),
		Pending:   counts[dispatch.StatusPending],
		Assigned:  counts[dispatch.StatusAssigned],
		Completed: counts[dispatch.StatusCompleted],
		InFlight:  snap.InFlight,
		Idle:      snap.Idle(),
		Sessions:  make([]SessionSummary, 0, len(snap.Sessions)),
	}
	for _, sess := range snap.Sessions {
		status.Sessions = append(status.Sessions, SessionSummary{
			ID:         string(sess.ID),
			Current:    sess.Current,
			History:    len(sess.History),
			Redelivery: sess.Redelivery,
		})
	}
	return status
}

// FromNotification renders an engine notification as a stream event. Image
// bytes are inlined as a data URL.
func FromNotification(n dispatch.Notification) SessionEvent {
	event := SessionEvent{
		Type:   string(n.Kind),
		ItemID: n.ItemID,
		Origin: string(n.Origin),
		Reason: n.Reason,
	}
	if n.Blob != nil {
		event.Image = n.Blob.DataURL()
	}
	if n.Kind == dispatch.KindAssigned {
		event.Result = n.Result.Clone()
	}
	if len(n.Missing) > 0 {
		event.Missing = append([]string(nil), n.Missing...)
	}
	if n.Kind == dispatch.KindSessionCount {
		count := n.Count
		event.Count = &count
	}
	return event
}
