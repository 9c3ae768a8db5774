package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"labeldesk/internal/api"
	"labeldesk/internal/config"
	"labeldesk/internal/dispatch"
	"labeldesk/internal/ingest"
	"labeldesk/internal/items"
	"labeldesk/internal/logging"
	"labeldesk/internal/metrics"
	"labeldesk/internal/notifications"
)

const notifyTimeout = 15 * time.Second

// Daemon wires the item store, the dispatch engine and the HTTP surface into
// one lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *items.Store
	notifier notifications.Service
	registry *prometheus.Registry
	metrics  *metrics.PrometheusCollector

	lockPath string
	lock     *flock.Flock

	lifecycle sync.Mutex
	running   atomic.Bool
	svc       atomic.Pointer[services]
	cancel    context.CancelFunc
	group     *errgroup.Group
}

// services are rebuilt on every Start; an engine cannot be run twice.
type services struct {
	engine *dispatch.Engine
	hub    *dispatch.Hub
	ingest *ingest.Pipeline
	items  *api.ItemService
	api    *apiServer
}

// New constructs a daemon. A nil notifier is replaced by one built from cfg.
func New(cfg *config.Config, store *items.Store, logger *slog.Logger, notifier notifications.Service) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and item store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	registry := prometheus.NewRegistry()
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		notifier: notifier,
		registry: registry,
		metrics:  metrics.NewPrometheus(registry, ""),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, starts the dispatch engine and the API
// server, and queues every incomplete stored item.
func (d *Daemon) Start(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another labeldesk daemon instance is already running")
	}

	svc, err := d.buildServices()
	if err != nil {
		_ = d.lock.Unlock()
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	if err := svc.api.listen(); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return svc.engine.Run(groupCtx)
	})
	group.Go(func() error {
		return svc.api.serve(groupCtx)
	})
	group.Go(func() error {
		d.scan(groupCtx, svc.ingest)
		return nil
	})

	d.svc.Store(svc)
	d.cancel = cancel
	d.group = group
	d.running.Store(true)
	d.logger.Info("labeldesk daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api_address", svc.api.address()),
	)
	return nil
}

func (d *Daemon) buildServices() (*services, error) {
	hub := dispatch.NewHub(d.cfg.Dispatch.SubscriberBuffer, d.metrics, d.logger)
	engine, err := dispatch.New(dispatch.Options{
		Store:           d.store,
		Notifier:        hub,
		Metrics:         d.metrics,
		Logger:          d.logger,
		RequiredFields:  d.cfg.Dispatch.RequiredFields,
		ValidateTimeout: d.cfg.ValidateTimeout(),
		OnDrained:       d.backlogDrained,
	})
	if err != nil {
		return nil, fmt.Errorf("create dispatch engine: %w", err)
	}
	svc := &services{
		engine: engine,
		hub:    hub,
		ingest: ingest.New(d.cfg, d.store, engine, d.logger),
		items:  api.NewItemService(d.store, engine, d.cfg.Dispatch.RequiredFields),
	}
	svc.api = newAPIServer(d.cfg, d, svc, d.logger)
	return svc, nil
}

func (d *Daemon) scan(ctx context.Context, pipeline *ingest.Pipeline) {
	result, err := pipeline.Scan(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "upload directory scan incomplete", "startup_scan_failed",
			logging.Error(err),
			logging.Int("registered", result.Registered),
			logging.Int("enqueued", result.Enqueued),
			logging.String(logging.FieldErrorHint, "check permissions on the upload directory"),
			logging.String(logging.FieldImpact, "some stored images are not offered to workers"),
		)
		d.publish(notifications.EventError, notifications.Payload{"context": "startup scan", "error": err})
		return
	}
	d.logger.Info("upload directory scanned",
		logging.String(logging.FieldEventType, "startup_scan"),
		logging.Int("registered", result.Registered),
		logging.Int("enqueued", result.Enqueued),
	)
}

// backlogDrained runs on the engine goroutine and must not block it.
func (d *Daemon) backlogDrained(snap dispatch.Snapshot) {
	completed := snap.Counts()[dispatch.StatusCompleted]
	d.logger.Info("backlog drained",
		logging.String(logging.FieldEventType, "backlog_drained"),
		logging.Int("completed", completed),
	)
	go d.publish(notifications.EventBacklogDrained, notifications.Payload{"completed": completed})
}

func (d *Daemon) publish(event notifications.Event, payload notifications.Payload) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := d.notifier.Publish(ctx, event, payload); err != nil {
		d.logger.Warn("notification failed",
			logging.String(logging.FieldEventType, string(event)),
			logging.Error(err),
		)
	}
}

// Stop shuts the API server and engine down, waits for pending result writes,
// and releases the daemon lock.
func (d *Daemon) Stop() {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if !d.running.Load() {
		return
	}

	d.cancel()
	if err := d.group.Wait(); err != nil {
		d.logger.Warn("daemon component exited with error", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.svc.Store(nil)
	d.cancel = nil
	d.group = nil
	d.running.Store(false)
	d.logger.Info("labeldesk daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Registry exposes the metrics registry served on /metrics.
func (d *Daemon) Registry() *prometheus.Registry {
	return d.registry
}

// RequiredFields lists the result fields that make an item complete.
func (d *Daemon) RequiredFields() []string {
	return append([]string(nil), d.cfg.Dispatch.RequiredFields...)
}

func (d *Daemon) current() *services {
	return d.svc.Load()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		UploadDir:    d.cfg.Paths.UploadDir,
		Dispatch:     api.DispatchStatus{Sessions: []api.SessionSummary{}},
	}
	if health, err := d.store.Health(ctx); err == nil {
		status.Store = api.FromHealth(health)
	} else {
		d.logger.Warn("item store health check failed", logging.Error(err))
	}
	if svc := d.current(); svc != nil {
		status.APIAddress = svc.api.address()
		if snap, err := svc.engine.Snapshot(ctx); err == nil {
			status.Dispatch = api.FromSnapshot(snap)
		}
	}
	return status
}

// ListItems returns stored item ids, with full records when detailed is set.
func (d *Daemon) ListItems(ctx context.Context, filter items.Filter, detailed bool) (api.ItemListResponse, error) {
	if svc := d.current(); svc != nil {
		return svc.items.List(ctx, filter, detailed)
	}
	return api.NewItemService(d.store, nil, d.cfg.Dispatch.RequiredFields).List(ctx, filter, detailed)
}

// AddFile copies an image into the upload directory and offers it to workers.
func (d *Daemon) AddFile(ctx context.Context, sourcePath string) (*items.Record, error) {
	svc := d.current()
	if svc == nil {
		return nil, errors.New("daemon not running")
	}
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return nil, errors.New("source path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve source path: %w", err)
	}
	record, err := svc.ingest.AddFile(ctx, absPath)
	if err != nil {
		return nil, err
	}
	d.logger.Info("manual image queued",
		logging.String(logging.FieldItemID, record.ID),
		logging.String("source", absPath),
	)
	return record, nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
