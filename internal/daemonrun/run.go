package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"labeldesk/internal/config"
	"labeldesk/internal/daemon"
	"labeldesk/internal/ipc"
	"labeldesk/internal/items"
	"labeldesk/internal/logging"
	"labeldesk/internal/notifications"
	"labeldesk/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SkipPreflight starts the daemon even when a readiness check fails.
	SkipPreflight bool
}

// Run starts the labeldesk daemon and blocks until a signal or cmdCtx ends it.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runStamp := time.Now().UTC().Format("20060102T150405.000Z")
	runID := uuid.NewString()
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("labeldesk-%s.log", runStamp))
	eventsPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("labeldesk-%s.events", runStamp))

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	// Machine-readable copy of the same stream for later inspection.
	events, eventsErr := logging.New(logging.Options{
		Level:       level,
		Format:      "json",
		OutputPaths: []string{eventsPath},
	})
	if eventsErr != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to initialize event log: %v\n", eventsErr)
	} else {
		logger = logging.TeeLogger(logger, events.Handler())
	}
	logger = logger.With(logging.String("run_id", runID))

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update labeldesk.log link: %v\n", err)
	}
	if _, err := logging.PruneLogs(logger, cfg.Logging.RetentionDays, logging.RunLogTargets(cfg.Paths.LogDir, logPath, eventsPath)...); err != nil {
		logging.WarnWithContext(logger, "log retention incomplete; some files remain", "log_retention_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check file permissions and log_dir ownership"),
			logging.String(logging.FieldImpact, "old log files remain on disk"),
		)
	}

	if err := runPreflight(signalCtx, cfg, logger, opts.SkipPreflight); err != nil {
		return err
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "labeldesk.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := items.Open(cfg)
	if err != nil {
		logger.Error("open item store", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, store, logger, notifications.NewService(cfg))
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	logger.Info("labeldesk daemon ready",
		logging.String("log_path", logPath),
		logging.String("socket", cfg.SocketPath()),
		logging.Int("pid", os.Getpid()),
	)

	<-signalCtx.Done()
	logger.Info("labeldesk daemon shutting down")
	return nil
}

func runPreflight(ctx context.Context, cfg *config.Config, logger *slog.Logger, skip bool) error {
	failed := preflight.Failed(preflight.RunAll(ctx, cfg))
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(failed))
	for _, result := range failed {
		names = append(names, result.Name)
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the path or bind address in the config file"),
		)
	}
	if skip {
		return nil
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "labeldesk.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// ReadPID returns the pid recorded by a running daemon, or 0 when none is.
func ReadPID(cfg *config.Config) int {
	data, err := os.ReadFile(filepath.Join(cfg.Paths.DataDir, "labeldesk.pid"))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
