package dispatch

import (
	"strings"

	"labeldesk/internal/items"
	"labeldesk/internal/logging"
)

func (e *Engine) handleConnect(id SessionID) {
	if _, added := e.sessions.register(id); !added {
		e.stale("connect", id, "")
		return
	}
	e.logger.Info("session connected",
		logging.String(logging.FieldSessionID, string(id)),
		logging.Int("sessions", e.sessions.len()),
	)
	e.broadcastSessionCount()
}

func (e *Engine) handleReady(id SessionID) {
	s := e.sessions.get(id)
	if s == nil {
		e.stale("ready", id, "")
		return
	}
	if _, busy := e.acquisitions[id]; busy {
		e.stale("ready", id, "")
		return
	}
	if !s.idle() {
		if item := e.items[s.current]; item != nil && item.assignedTo == id {
			e.startAcquire(s, item, OriginRefresh, nil)
			return
		}
		s.current = ""
	}
	e.advance(s, nil)
}

func (e *Engine) handleSubmit(id SessionID, itemID string, fields map[string]*string) {
	s := e.sessions.get(id)
	item := e.items[itemID]
	if s == nil || item == nil || item.status != StatusAssigned || item.assignedTo != id {
		e.stale("submit", id, itemID)
		return
	}

	item.result = item.result.Merge(fields)
	e.persist(item.id, item.result)

	if missing := item.result.Missing(e.required); len(missing) > 0 {
		e.metrics.Submitted(false)
		note := errorNote(item.id, "result incomplete: missing "+strings.Join(missing, ", "))
		note.Missing = missing
		e.notify.Send(id, note)
		return
	}

	e.metrics.Submitted(true)
	e.dropRefresh(id)
	e.complete(item)
	e.logger.Info("item completed",
		logging.String(logging.FieldSessionID, string(id)),
		logging.String(logging.FieldItemID, item.id),
	)
	e.advance(s, nil)
	e.checkDrained()
}

func (e *Engine) handleSkip(id SessionID) {
	s := e.sessions.get(id)
	if s == nil || s.idle() {
		e.stale("skip", id, "")
		return
	}
	item := e.items[s.current]
	if item == nil || item.assignedTo != id {
		e.stale("skip", id, s.current)
		s.current = ""
		return
	}
	e.dropRefresh(id)
	item.skippedBy.Add(id)

	others := e.sessions.others(id)
	if len(others) == 0 {
		if !item.result.Complete(e.required) {
			e.metrics.Skipped(SkipRefresh)
			e.startAcquire(s, item, OriginRefresh, nil)
			return
		}
		e.metrics.Skipped(SkipCompleted)
		e.complete(item)
		e.advance(s, nil)
		e.checkDrained()
		return
	}

	s.current = ""
	item.assignedTo = ""
	item.status = StatusPending

	target := e.pickSkipTarget(others)
	attrs := []logging.Attr{
		logging.String(logging.FieldSessionID, string(id)),
		logging.String(logging.FieldItemID, item.id),
		logging.String("target_session", string(target.id)),
	}
	if target.idle() && e.acquisitions[target.id] == nil {
		e.metrics.Skipped(SkipHandoff)
		e.logger.Info("item skipped; handing off", logging.Args(attrs...)...)
		e.startAcquire(target, item, OriginHandoff, nil)
	} else {
		e.metrics.Skipped(SkipQueued)
		e.logger.Info("item skipped; queued for busy session", logging.Args(attrs...)...)
		target.redelivery = append(target.redelivery, item.id)
	}
	e.advance(s, nil)
}

// pickSkipTarget prefers the first idle session in connection order and
// falls back to the first session.
func (e *Engine) pickSkipTarget(others []*session) *session {
	for _, o := range others {
		if o.idle() && e.acquisitions[o.id] == nil {
			return o
		}
	}
	return others[0]
}

func (e *Engine) handlePrevious(id SessionID) {
	s := e.sessions.get(id)
	if s == nil {
		e.stale("previous", id, "")
		return
	}
	if acq := e.acquisitions[id]; acq != nil && acq.origin != OriginRefresh {
		e.stale("previous", id, acq.item)
		return
	}

	var found *workItem
	for i := len(s.history) - 1; i >= 0; i-- {
		itemID := s.history[i]
		if itemID == s.current {
			continue
		}
		item := e.items[itemID]
		if item == nil || item.skippedBy.Contains(id) {
			continue
		}
		if item.assignedTo != "" && item.assignedTo != id {
			continue
		}
		if item.reservedBy != "" && item.reservedBy != id {
			continue
		}
		found = item
		break
	}
	if found == nil {
		e.metrics.NoWork()
		e.notify.Send(id, Notification{Kind: KindNoWorkAvailable})
		return
	}

	e.dropRefresh(id)
	if !s.idle() {
		e.release(s)
	}
	e.backlog.remove(found.id)
	e.sessions.dropFromQueues(found.id)
	e.startAcquire(s, found, OriginPrevious, nil)
}

func (e *Engine) handleDisconnect(id SessionID) {
	s := e.sessions.get(id)
	if s == nil {
		e.stale("disconnect", id, "")
		return
	}

	requeued := 0
	// Push in reverse priority so the held item ends up at the very front,
	// followed by the reserved candidate and then the earmarked queue.
	for i := len(s.redelivery) - 1; i >= 0; i-- {
		if item := e.claimable(s.redelivery[i]); item != nil {
			e.backlog.requeueFront(item.id)
			requeued++
		}
	}
	s.redelivery = nil
	if acq := e.acquisitions[id]; acq != nil {
		delete(e.acquisitions, id)
		if item := e.items[acq.item]; item != nil && acq.origin != OriginRefresh && item.reservedBy == id {
			if e.unreserve(item) {
				requeued++
			}
		}
	}
	if !s.idle() && e.release(s) {
		requeued++
	}
	e.sessions.unregister(id)

	e.logger.Info("session disconnected",
		logging.String(logging.FieldSessionID, string(id)),
		logging.Int("requeued", requeued),
		logging.Int("sessions", e.sessions.len()),
	)
	e.metrics.BacklogDepth(e.backlog.len())
	e.broadcastSessionCount()
	if requeued > 0 {
		e.notify.Broadcast(Notification{Kind: KindItemAvailable})
	}
}

func (e *Engine) handleEnqueue(id string, result items.Result) bool {
	if id == "" {
		return false
	}
	if _, known := e.items[id]; known {
		e.logger.Debug("duplicate enqueue ignored", logging.String(logging.FieldItemID, id))
		return false
	}
	e.items[id] = newWorkItem(id, result)
	e.backlog.pushBack(id)
	e.drained = false
	e.metrics.BacklogDepth(e.backlog.len())
	e.notify.Broadcast(Notification{Kind: KindItemAvailable, ItemID: id})
	return true
}

func (e *Engine) handleForget(id string) error {
	item := e.items[id]
	if item == nil {
		return ErrUnknownItem
	}
	if item.status == StatusAssigned || item.reservedBy != "" {
		return ErrItemBusy
	}
	e.backlog.remove(id)
	e.sessions.dropFromQueues(id)
	delete(e.items, id)
	e.metrics.BacklogDepth(e.backlog.len())
	e.checkDrained()
	return nil
}

// handleSetResult applies an operator edit. Held items keep the merged result
// for their holder; idle items move between Pending and Completed to match it.
func (e *Engine) handleSetResult(id string, fields map[string]*string) (items.Result, error) {
	item := e.items[id]
	if item == nil {
		return nil, ErrUnknownItem
	}
	item.result = item.result.Merge(fields)
	e.persist(item.id, item.result)

	complete := item.result.Complete(e.required)
	switch {
	case item.status == StatusCompleted && !complete:
		item.status = StatusPending
		e.backlog.pushBack(item.id)
		e.drained = false
		e.metrics.BacklogDepth(e.backlog.len())
		e.notify.Broadcast(Notification{Kind: KindItemAvailable, ItemID: item.id})
	case item.status == StatusPending && item.reservedBy == "" && complete:
		e.complete(item)
		e.checkDrained()
	}
	e.logger.Info("item result updated by operator",
		logging.String(logging.FieldItemID, item.id),
		logging.String("status", string(item.status)),
		logging.Bool("complete", complete),
	)
	return item.result.Clone(), nil
}

func (e *Engine) handleResult(id string) (items.Result, error) {
	item := e.items[id]
	if item == nil {
		return nil, ErrUnknownItem
	}
	return item.result.Clone(), nil
}

// complete marks item Completed and removes it from every queue.
func (e *Engine) complete(item *workItem) {
	if holder := e.sessions.get(item.assignedTo); holder != nil && holder.current == item.id {
		holder.current = ""
	}
	item.status = StatusCompleted
	item.assignedTo = ""
	item.reservedBy = ""
	e.backlog.remove(item.id)
	e.sessions.dropFromQueues(item.id)
	e.metrics.BacklogDepth(e.backlog.len())
	e.notify.Broadcast(Notification{Kind: KindItemCompleted, ItemID: item.id})
}

// release takes the session's current item back. Items whose result is
// already complete return to Completed; the rest go to the backlog front.
// It reports whether the backlog gained an item.
func (e *Engine) release(s *session) bool {
	item := e.items[s.current]
	s.current = ""
	if item == nil || item.assignedTo != s.id {
		return false
	}
	if item.result.Complete(e.required) {
		e.complete(item)
		return false
	}
	item.assignedTo = ""
	item.status = StatusPending
	e.backlog.requeueFront(item.id)
	return true
}

// unreserve clears a reservation and requeues the item if it is still pending.
func (e *Engine) unreserve(item *workItem) bool {
	item.reservedBy = ""
	if item.status != StatusPending {
		return false
	}
	e.backlog.requeueFront(item.id)
	return true
}

// claimable returns the item if it can be offered to a session.
func (e *Engine) claimable(id string) *workItem {
	item := e.items[id]
	if item == nil || item.status != StatusPending || item.assignedTo != "" || item.reservedBy != "" {
		return nil
	}
	return item
}

func (e *Engine) dropRefresh(id SessionID) {
	if acq := e.acquisitions[id]; acq != nil && acq.origin == OriginRefresh {
		delete(e.acquisitions, id)
	}
}

func (e *Engine) broadcastSessionCount() {
	n := e.sessions.len()
	e.metrics.Sessions(n)
	e.notify.Broadcast(Notification{Kind: KindSessionCount, Count: n})
}

func (e *Engine) checkDrained() {
	if e.drained || len(e.acquisitions) > 0 {
		return
	}
	for _, item := range e.items {
		if item.status != StatusCompleted {
			return
		}
	}
	e.drained = true
	e.logger.Info("all items completed", logging.Int("items", len(e.items)))
	if e.onDrained != nil {
		e.onDrained(e.snapshot())
	}
}

func (e *Engine) stale(event string, id SessionID, itemID string) {
	e.metrics.StaleEvent(event)
	e.logger.Debug("stale event ignored",
		logging.String(logging.FieldEventType, event),
		logging.String(logging.FieldSessionID, string(id)),
		logging.String(logging.FieldItemID, itemID),
	)
}
