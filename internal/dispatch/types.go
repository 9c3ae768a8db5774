package dispatch

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"

	"labeldesk/internal/items"
)

// SessionID identifies one worker connection for its lifetime.
type SessionID string

// Status is the lifecycle state of a work item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusCompleted Status = "completed"
)

// Origin records why an item is being offered to a session.
type Origin string

const (
	// OriginBacklog is a fresh or requeued item popped from the shared backlog.
	OriginBacklog Origin = "backlog"
	// OriginRedelivery is an item popped from the session's private queue.
	OriginRedelivery Origin = "redelivery"
	// OriginHandoff is an item another session skipped to this idle one.
	OriginHandoff Origin = "handoff"
	// OriginPrevious is an item reopened through history navigation.
	OriginPrevious Origin = "previous"
	// OriginRefresh re-sends the item a session already holds.
	OriginRefresh Origin = "refresh"
)

// recordsHistory reports whether a commit with this origin appends to the
// session history.
func (o Origin) recordsHistory() bool {
	switch o {
	case OriginBacklog, OriginRedelivery, OriginHandoff:
		return true
	default:
		return false
	}
}

// ItemStore is the durable collaborator the engine validates against and
// writes results to.
type ItemStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	FetchBytes(ctx context.Context, id string) (*items.Blob, error)
	SaveResult(ctx context.Context, id string, result items.Result) error
}

// Notifier delivers engine notifications to sessions.
type Notifier interface {
	Send(session SessionID, n Notification)
	Broadcast(n Notification)
}

type workItem struct {
	id         string
	status     Status
	result     items.Result
	assignedTo SessionID
	skippedBy  mapset.Set[SessionID]
	// reservedBy marks an item popped for a session whose store check has
	// not returned yet. Reserved items are Pending but in no queue.
	reservedBy SessionID
}

func newWorkItem(id string, result items.Result) *workItem {
	return &workItem{
		id:        id,
		status:    StatusPending,
		result:    result.Clone(),
		skippedBy: mapset.NewThreadUnsafeSet[SessionID](),
	}
}

// acquisition is one in-flight store check for a session.
type acquisition struct {
	token   uint64
	session SessionID
	item    string
	origin  Origin
	// tried holds ids that already failed validation in this ready cycle.
	tried mapset.Set[string]
}
