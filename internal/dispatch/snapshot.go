package dispatch

import (
	"slices"
	"sort"
)

// Snapshot is a point-in-time copy of engine state.
type Snapshot struct {
	Backlog  []string
	Sessions []SessionSnapshot
	Items    map[string]ItemSnapshot
	InFlight int
}

// SessionSnapshot describes one connected session.
type SessionSnapshot struct {
	ID         SessionID
	Current    string
	History    []string
	Redelivery []string
	Acquiring  string
}

// ItemSnapshot describes one tracked item.
type ItemSnapshot struct {
	Status     Status
	AssignedTo SessionID
	ReservedBy SessionID
	SkippedBy  []SessionID
	Fields     []string
}

// Counts tallies items by status.
func (s Snapshot) Counts() map[Status]int {
	counts := map[Status]int{StatusPending: 0, StatusAssigned: 0, StatusCompleted: 0}
	for _, item := range s.Items {
		counts[item.Status]++
	}
	return counts
}

// Session returns the snapshot for id.
func (s Snapshot) Session(id SessionID) (SessionSnapshot, bool) {
	for _, sess := range s.Sessions {
		if sess.ID == id {
			return sess, true
		}
	}
	return SessionSnapshot{}, false
}

// Idle reports whether nothing is queued, held, or being validated.
func (s Snapshot) Idle() bool {
	if len(s.Backlog) > 0 || s.InFlight > 0 {
		return false
	}
	for _, sess := range s.Sessions {
		if sess.Current != "" || len(sess.Redelivery) > 0 {
			return false
		}
	}
	return true
}

func (e *Engine) snapshot() Snapshot {
	snap := Snapshot{
		Backlog:  e.backlog.snapshot(),
		Items:    make(map[string]ItemSnapshot, len(e.items)),
		InFlight: len(e.acquisitions),
	}
	for _, sess := range e.sessions.ordered() {
		entry := SessionSnapshot{
			ID:         sess.id,
			Current:    sess.current,
			History:    e.sessions.historyOf(sess.id),
			Redelivery: e.sessions.queueOf(sess.id),
		}
		if acq := e.acquisitions[sess.id]; acq != nil {
			entry.Acquiring = acq.item
		}
		snap.Sessions = append(snap.Sessions, entry)
	}
	for id, item := range e.items {
		skipped := item.skippedBy.ToSlice()
		sort.Slice(skipped, func(i, j int) bool { return skipped[i] < skipped[j] })
		snap.Items[id] = ItemSnapshot{
			Status:     item.status,
			AssignedTo: item.assignedTo,
			ReservedBy: item.reservedBy,
			SkippedBy:  skipped,
			Fields:     slices.Clone(item.result.Fields()),
		}
	}
	return snap
}
