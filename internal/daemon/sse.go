package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"labeldesk/internal/api"
	"labeldesk/internal/dispatch"
	"labeldesk/internal/logging"
)

const (
	keepAliveInterval = 25 * time.Second
	disconnectTimeout = 5 * time.Second
)

// handleSessionStream opens a worker session. The stream lives as long as the
// session: when the client goes away the session is disconnected and its
// item returns to the backlog.
func (s *apiServer) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Streams outlive the server read and write timeouts.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	_ = rc.SetReadDeadline(time.Time{})

	id := dispatch.SessionID(uuid.NewString())
	events, unsubscribe := s.svc.hub.Subscribe(id)
	defer unsubscribe()

	if err := s.svc.engine.Connect(r.Context(), id); err != nil {
		s.engineError(w, "connect", err)
		return
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), disconnectTimeout)
		defer cancel()
		if err := s.svc.engine.Disconnect(ctx, id); err != nil {
			s.logger.Debug("session disconnect not applied",
				logging.String(logging.FieldSessionID, string(id)),
				logging.Error(err),
			)
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, rc, api.SessionEvent{Type: api.EventSession, SessionID: string(id)}); err != nil {
		return
	}
	s.logger.Info("worker session opened",
		logging.String(logging.FieldSessionID, string(id)),
		logging.String("remote_addr", r.RemoteAddr),
	)

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("worker session closed", logging.String(logging.FieldSessionID, string(id)))
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case n, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, rc, api.FromNotification(n)); err != nil {
				s.logger.Warn("session stream write failed",
					logging.String(logging.FieldSessionID, string(id)),
					logging.Error(err),
				)
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, event api.SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return err
	}
	return rc.Flush()
}
