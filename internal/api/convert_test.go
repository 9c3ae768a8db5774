package api

import (
	"strings"
	"testing"
	"time"

	"labeldesk/internal/dispatch"
	"labeldesk/internal/items"
)

func ptr(v string) *string { return &v }

func TestFromRecordMarksCompletion(t *testing.T) {
	done := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	record := &items.Record{
		ID:          "abc",
		SourcePath:  "/uploads/abc.png",
		Result:      items.Result{"result": ptr("cat"), "btn_1": nil},
		CreatedAt:   done,
		CompletedAt: &done,
	}
	dto := FromRecord(record, []string{"result"})
	if !dto.Complete {
		t.Fatal("expected complete with only result required")
	}
	if dto.CompletedAt != "2026-01-02T03:04:05.000Z" {
		t.Fatalf("completedAt = %q", dto.CompletedAt)
	}
	if dto := FromRecord(record, []string{"result", "btn_1"}); dto.Complete {
		t.Fatal("expected incomplete when btn_1 required")
	}
}

func TestFromSnapshotCounts(t *testing.T) {
	snap := dispatch.Snapshot{
		Backlog: []string{"y"},
		Items: map[string]dispatch.ItemSnapshot{
			"x": {Status: dispatch.StatusAssigned, AssignedTo: "a"},
			"y": {Status: dispatch.StatusPending},
			"z": {Status: dispatch.StatusCompleted},
		},
		Sessions: []dispatch.SessionSnapshot{{ID: "a", Current: "x", History: []string{"z", "x"}}},
	}
	status := FromSnapshot(snap)
	if status.Backlog != 1 || status.Pending != 1 || status.Assigned != 1 || status.Completed != 1 {
		t.Fatalf("status = %+v", status)
	}
	if len(status.Sessions) != 1 || status.Sessions[0].History != 2 {
		t.Fatalf("sessions = %+v", status.Sessions)
	}
	if status.Idle {
		t.Fatal("expected busy snapshot to report not idle")
	}
	if !FromSnapshot(dispatch.Snapshot{Sessions: []dispatch.SessionSnapshot{{ID: "a"}}}).Idle {
		t.Fatal("expected empty snapshot to report idle")
	}
}

func TestFromNotificationInlinesImage(t *testing.T) {
	event := FromNotification(dispatch.Notification{
		Kind:   dispatch.KindAssigned,
		ItemID: "x",
		Origin: dispatch.OriginBacklog,
		Blob:   &items.Blob{ContentType: "image/png", Data: []byte{1, 2, 3}},
		Result: items.Result{"result": nil},
	})
	if !strings.HasPrefix(event.Image, "data:image/png;base64,") {
		t.Fatalf("image = %q", event.Image)
	}
	if event.Type != "assigned" || event.Origin != "backlog" {
		t.Fatalf("event = %+v", event)
	}

	count := FromNotification(dispatch.Notification{Kind: dispatch.KindSessionCount, Count: 0})
	if count.Count == nil || *count.Count != 0 {
		t.Fatalf("session count = %v", count.Count)
	}
}
