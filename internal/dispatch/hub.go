package dispatch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"labeldesk/internal/logging"
)

const (
	defaultSubscriberBuffer = 16
	// directSendWait bounds how long a direct notification waits for room
	// in a full subscriber buffer.
	directSendWait = 250 * time.Millisecond
)

// Hub fans engine notifications out to per-session channels. Broadcasts are
// best effort and skip full buffers. Direct notifications carry assignments
// and errors, so they wait briefly for the reader before being dropped.
type Hub struct {
	subscribers *xsync.Map[SessionID, *subscriber]
	buffer      int
	metrics     Metrics
	logger      *slog.Logger
}

type subscriber struct {
	ch     chan Notification
	mu     sync.Mutex
	closed bool
}

// NewHub creates a hub whose subscriber channels hold buffer events.
func NewHub(buffer int, metrics Metrics, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Hub{
		subscribers: xsync.NewMap[SessionID, *subscriber](),
		buffer:      buffer,
		metrics:     metrics,
		logger:      logging.NewComponentLogger(logger, "hub"),
	}
}

// Subscribe registers a channel for session. Subscribing an id twice closes
// the earlier channel. The returned func unsubscribes and closes the channel.
func (h *Hub) Subscribe(session SessionID) (<-chan Notification, func()) {
	sub := &subscriber{ch: make(chan Notification, h.buffer)}
	if prev, loaded := h.subscribers.LoadAndStore(session, sub); loaded {
		prev.close()
	}
	cancel := func() {
		h.subscribers.Compute(session, func(current *subscriber, loaded bool) (*subscriber, xsync.ComputeOp) {
			if loaded && current == sub {
				return nil, xsync.DeleteOp
			}
			return current, xsync.CancelOp
		})
		sub.close()
	}
	return sub.ch, cancel
}

// Len reports the number of subscribed sessions.
func (h *Hub) Len() int {
	return h.subscribers.Size()
}

// Send delivers n to one session.
func (h *Hub) Send(session SessionID, n Notification) {
	sub, ok := h.subscribers.Load(session)
	if !ok {
		h.logger.Debug("notification for unknown session",
			logging.String(logging.FieldSessionID, string(session)),
			logging.String(logging.FieldEventType, string(n.Kind)),
		)
		return
	}
	if !sub.send(n, directSendWait) {
		h.metrics.NotificationDropped()
		logging.ErrorWithContext(h.logger, "direct notification dropped; subscriber not reading", "notification_dropped",
			logging.String(logging.FieldSessionID, string(session)),
			logging.String(logging.FieldEventType, string(n.Kind)),
			logging.String(logging.FieldItemID, n.ItemID),
			logging.Duration("waited", directSendWait),
			logging.String(logging.FieldErrorHint, "the worker can resend ready to have its current item re-delivered"),
		)
	}
}

// Broadcast delivers n to every subscribed session.
func (h *Hub) Broadcast(n Notification) {
	h.subscribers.Range(func(session SessionID, sub *subscriber) bool {
		if !sub.send(n, 0) {
			h.dropped(session, n)
		}
		return true
	})
}

func (h *Hub) dropped(session SessionID, n Notification) {
	h.metrics.NotificationDropped()
	h.logger.Warn("notification dropped; subscriber buffer full",
		logging.String(logging.FieldSessionID, string(session)),
		logging.String(logging.FieldEventType, string(n.Kind)),
		logging.String(logging.FieldItemID, n.ItemID),
	)
}

// send queues n, waiting up to wait for buffer space. Closed subscribers
// swallow the event.
func (s *subscriber) send(n Notification, wait time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- n:
		return true
	default:
	}
	if wait <= 0 {
		return false
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case s.ch <- n:
		return true
	case <-timer.C:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
