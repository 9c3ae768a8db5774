package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"labeldesk/internal/api"
	"labeldesk/internal/config"
	"labeldesk/internal/dispatch"
	"labeldesk/internal/fileutil"
	"labeldesk/internal/items"
	"labeldesk/internal/logging"
)

const (
	maxSubmitBytes  = 1 << 20
	multipartMemory = 8 << 20
	shutdownTimeout = 5 * time.Second
)

type apiServer struct {
	bind      string
	logger    *slog.Logger
	daemon    *Daemon
	svc       *services
	required  []string
	maxUpload int64

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, svc *services, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:      strings.TrimSpace(cfg.Paths.APIBind),
		logger:    logging.NewComponentLogger(logger, "api-server"),
		daemon:    d,
		svc:       svc,
		required:  append([]string(nil), cfg.Dispatch.RequiredFields...),
		maxUpload: cfg.MaxUploadBytes(),
	}
	operator := func(h http.HandlerFunc) http.HandlerFunc {
		return authMiddleware(cfg.Paths.APIToken, h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", srv.handleHealth)
	mux.HandleFunc("GET /api/sessions/connect", srv.handleSessionStream)
	mux.HandleFunc("POST /api/sessions/{id}/ready", srv.sessionAction("ready", svc.engine.Ready))
	mux.HandleFunc("POST /api/sessions/{id}/skip", srv.sessionAction("skip", svc.engine.Skip))
	mux.HandleFunc("POST /api/sessions/{id}/previous", srv.sessionAction("previous", svc.engine.Previous))
	mux.HandleFunc("POST /api/sessions/{id}/submit", srv.handleSubmit)

	mux.HandleFunc("POST /api/upload", operator(srv.handleUpload))
	mux.HandleFunc("GET /api/items", operator(srv.handleItems))
	mux.HandleFunc("GET /api/items/{id}", operator(srv.handleItem))
	mux.HandleFunc("GET /api/items/{id}/result", operator(srv.handleItemResult))
	mux.HandleFunc("POST /api/items/{id}/result", operator(srv.handleSetResult))
	mux.HandleFunc("GET /api/items/{id}/image", operator(srv.handleItemImage))
	mux.HandleFunc("GET /api/status", operator(srv.handleStatus))
	mux.Handle("GET /metrics", operator(promhttp.HandlerFor(d.Registry(), promhttp.HandlerOpts{}).ServeHTTP))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) listen() error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	return nil
}

// serve blocks until ctx is cancelled. Request contexts derive from ctx so
// open session streams end with it.
func (s *apiServer) serve(ctx context.Context) error {
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(s.listener)
	}()
	s.logger.Info("api server listening", logging.String("address", s.address()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown incomplete", logging.Error(err))
		_ = s.server.Close()
	}
	return nil
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) sessionAction(name string, fn func(context.Context, dispatch.SessionID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := dispatch.SessionID(strings.TrimSpace(r.PathValue("id")))
		if id == "" {
			s.writeError(w, http.StatusBadRequest, "session id is required")
			return
		}
		if err := fn(r.Context(), id); err != nil {
			s.engineError(w, name, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id := dispatch.SessionID(strings.TrimSpace(r.PathValue("id")))
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	var req api.SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid submit body")
		return
	}
	req.ItemID = strings.TrimSpace(req.ItemID)
	if req.ItemID == "" {
		s.writeError(w, http.StatusBadRequest, "itemId is required")
		return
	}
	if err := s.svc.engine.Submit(r.Context(), id, req.ItemID, req.Fields); err != nil {
		s.engineError(w, "submit", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()
	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "image field is required")
		return
	}
	defer file.Close()

	record, err := s.svc.ingest.Save(r.Context(), header.Filename, file)
	if err != nil {
		if errors.Is(err, fileutil.ErrTooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		s.logger.Error("upload failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	s.writeJSON(w, http.StatusCreated, api.UploadResponse{
		ID:   record.ID,
		Item: api.FromRecord(record, s.required),
	})
}

func (s *apiServer) handleItems(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := items.Filter(strings.TrimSpace(query.Get("filter")))
	switch filter {
	case items.FilterAll, items.FilterComplete, items.FilterIncomplete:
	default:
		s.writeError(w, http.StatusBadRequest, "filter must be complete or incomplete")
		return
	}
	detailed := query.Get("detailed") == "1" || strings.EqualFold(query.Get("detailed"), "true")
	resp, err := s.svc.items.List(r.Context(), filter, detailed)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.svc.items.Describe(r.Context(), strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		if errors.Is(err, items.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "item not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, item)
}

func (s *apiServer) handleItemResult(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	resp, err := s.svc.items.Collect(r.Context(), id)
	if err != nil {
		if errors.Is(err, items.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "item not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if resp.Removed {
		s.logger.Info("result collected",
			logging.String(logging.FieldItemID, resp.ID),
			logging.String(logging.FieldEventType, "result_collected"),
		)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleSetResult(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	var req api.SetResultRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid result body")
		return
	}
	fields := req.Merged()
	if len(fields) == 0 {
		s.writeError(w, http.StatusBadRequest, "no result fields given")
		return
	}
	resp, err := s.svc.items.SetResult(r.Context(), id, fields)
	if err != nil {
		if errors.Is(err, items.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "item not found")
			return
		}
		s.engineError(w, "set_result", err)
		return
	}
	s.logger.Info("result updated by operator",
		logging.String(logging.FieldItemID, resp.ID),
		logging.String(logging.FieldEventType, "result_updated"),
		logging.Bool("complete", resp.Complete),
	)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleItemImage(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	blob, err := s.daemon.store.FetchBytes(r.Context(), id)
	if err != nil {
		if errors.Is(err, items.ErrNotFound) || errors.Is(err, items.ErrSourceMissing) {
			s.writeError(w, http.StatusNotFound, "image not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(blob.Data); err != nil {
		s.logger.Debug("image write aborted", logging.String(logging.FieldItemID, id), logging.Error(err))
	}
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.daemon.store.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "item store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, api.NewHealthResponse(health, time.Now()))
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) engineError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, dispatch.ErrEngineStopped):
		s.writeError(w, http.StatusServiceUnavailable, "dispatcher stopped")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.Error("session action failed", logging.String("action", action), logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
