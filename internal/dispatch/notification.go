package dispatch

import "labeldesk/internal/items"

// Kind names an outbound notification.
type Kind string

const (
	KindAssigned        Kind = "assigned"
	KindNoWorkAvailable Kind = "no_work_available"
	KindError           Kind = "error"
	KindItemAvailable   Kind = "item_available"
	KindItemCompleted   Kind = "item_completed"
	KindSessionCount    Kind = "session_count"
)

// Notification is a single event for one session or for every session.
// Only the fields relevant to Kind are set.
type Notification struct {
	Kind    Kind
	ItemID  string
	Origin  Origin
	Blob    *items.Blob
	Result  items.Result
	Reason  string
	Missing []string
	Count   int
}

func assignedNote(item *workItem, origin Origin, blob *items.Blob) Notification {
	return Notification{
		Kind:   KindAssigned,
		ItemID: item.id,
		Origin: origin,
		Blob:   blob,
		Result: item.result.Clone(),
	}
}

func errorNote(itemID, reason string) Notification {
	return Notification{Kind: KindError, ItemID: itemID, Reason: reason}
}
