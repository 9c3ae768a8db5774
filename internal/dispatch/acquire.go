package dispatch

import (
	"context"
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"labeldesk/internal/items"
	"labeldesk/internal/logging"
)

// advance offers the next candidate to an idle session: its redelivery queue
// first, then the shared backlog. Ids in tried are passed over.
func (e *Engine) advance(s *session, tried mapset.Set[string]) {
	if tried == nil {
		tried = mapset.NewThreadUnsafeSet[string]()
	}
	item, origin, ok := e.nextCandidate(s, tried)
	if !ok {
		e.metrics.NoWork()
		e.notify.Send(s.id, Notification{Kind: KindNoWorkAvailable})
		return
	}
	e.startAcquire(s, item, origin, tried)
}

func (e *Engine) nextCandidate(s *session, tried mapset.Set[string]) (*workItem, Origin, bool) {
	for {
		id, ok := s.popRedelivery()
		if !ok {
			break
		}
		item := e.claimable(id)
		if item == nil {
			continue
		}
		if tried.Contains(id) {
			e.backlog.requeueFront(id)
			continue
		}
		return item, OriginRedelivery, true
	}
	for {
		id, ok := e.backlog.dequeue(tried)
		if !ok {
			return nil, "", false
		}
		if item := e.claimable(id); item != nil {
			return item, OriginBacklog, true
		}
	}
}

// startAcquire reserves item for s and checks it against the store off the
// engine goroutine. The outcome comes back through finishAcquire.
func (e *Engine) startAcquire(s *session, item *workItem, origin Origin, tried mapset.Set[string]) {
	if tried == nil {
		tried = mapset.NewThreadUnsafeSet[string]()
	}
	e.nextToken++
	acq := &acquisition{
		token:   e.nextToken,
		session: s.id,
		item:    item.id,
		origin:  origin,
		tried:   tried,
	}
	if origin != OriginRefresh {
		item.reservedBy = s.id
	}
	e.acquisitions[s.id] = acq
	e.metrics.BacklogDepth(e.backlog.len())
	go e.validate(acq)
}

func (e *Engine) validate(acq *acquisition) {
	ctx, cancel := context.WithTimeout(e.runCtx, e.validateTimeout)
	defer cancel()
	blob, err := e.fetch(ctx, acq.item)
	e.post(func() { e.finishAcquire(acq, blob, err) })
}

func (e *Engine) fetch(ctx context.Context, id string) (*items.Blob, error) {
	ok, err := e.store.Exists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("check %s: %w", id, items.ErrNotFound)
	}
	blob, err := e.store.FetchBytes(ctx, id)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, fmt.Errorf("fetch %s: %w", id, items.ErrSourceMissing)
	}
	return blob, nil
}

// finishAcquire runs on the engine goroutine once the store check returns.
// Anything may have happened in between, so state is re-checked first.
// The last outstanding acquisition may be what held back the drained hook.
func (e *Engine) finishAcquire(acq *acquisition, blob *items.Blob, err error) {
	defer e.checkDrained()
	if current := e.acquisitions[acq.session]; current == nil || current.token != acq.token {
		e.stale("validated", acq.session, acq.item)
		if item := e.items[acq.item]; item != nil && acq.origin != OriginRefresh && item.reservedBy == acq.session {
			e.unreserve(item)
		}
		return
	}
	delete(e.acquisitions, acq.session)

	s := e.sessions.get(acq.session)
	item := e.items[acq.item]
	if s == nil {
		return
	}
	if item == nil {
		e.stale("validated", acq.session, acq.item)
		if s.idle() {
			e.advance(s, acq.tried)
		}
		return
	}

	if err != nil {
		e.handleMiss(s, item, acq, err)
		return
	}

	if acq.origin == OriginRefresh {
		if item.assignedTo != s.id || s.current != item.id {
			e.stale("validated", s.id, item.id)
			if s.idle() {
				e.advance(s, nil)
			}
			return
		}
		e.metrics.Assigned(OriginRefresh)
		e.notify.Send(s.id, assignedNote(item, OriginRefresh, blob))
		return
	}

	if !s.idle() || item.reservedBy != s.id || item.status == StatusAssigned {
		e.stale("validated", s.id, item.id)
		if item.reservedBy == s.id {
			e.unreserve(item)
		}
		return
	}
	e.commit(s, item, acq.origin, blob)
}

func (e *Engine) commit(s *session, item *workItem, origin Origin, blob *items.Blob) {
	if item.status == StatusCompleted {
		e.drained = false
	}
	item.reservedBy = ""
	item.status = StatusAssigned
	item.assignedTo = s.id
	item.skippedBy.Remove(s.id)
	s.current = item.id
	if origin.recordsHistory() {
		s.history = append(s.history, item.id)
	}
	e.metrics.Assigned(origin)
	e.logger.Info("item assigned",
		logging.String(logging.FieldSessionID, string(s.id)),
		logging.String(logging.FieldItemID, item.id),
		logging.String(logging.FieldOrigin, string(origin)),
	)
	e.notify.Send(s.id, assignedNote(item, origin, blob))
}

func (e *Engine) handleMiss(s *session, item *workItem, acq *acquisition, err error) {
	e.metrics.StoreMiss()
	logging.WarnWithContext(e.logger, "item failed store check", "store_miss",
		logging.String(logging.FieldSessionID, string(s.id)),
		logging.String(logging.FieldItemID, item.id),
		logging.String(logging.FieldOrigin, string(acq.origin)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "verify the image file and its metadata exist"),
		logging.String(logging.FieldImpact, "item requeued; next candidate offered"),
	)

	switch acq.origin {
	case OriginRefresh:
		e.notify.Send(s.id, errorNote(item.id, missReason(err)))
	case OriginPrevious:
		e.unreserve(item)
		e.notify.Send(s.id, errorNote(item.id, missReason(err)))
	default:
		e.unreserve(item)
		acq.tried.Add(item.id)
		e.advance(s, acq.tried)
	}
}

func missReason(err error) string {
	switch {
	case errors.Is(err, items.ErrNotFound):
		return "item metadata missing"
	case errors.Is(err, items.ErrSourceMissing):
		return "image file missing"
	case errors.Is(err, context.DeadlineExceeded):
		return "item store timed out"
	default:
		return "failed to load image"
	}
}
