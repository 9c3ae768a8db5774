package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"labeldesk/internal/items"
	"labeldesk/internal/logging"
)

const (
	defaultValidateTimeout = 10 * time.Second
	persistTimeout         = 30 * time.Second
	eventBuffer            = 64
	writeBuffer            = 256
)

// Options configures an Engine. Store and Notifier are required.
type Options struct {
	Store           ItemStore
	Notifier        Notifier
	Metrics         Metrics
	Logger          *slog.Logger
	RequiredFields  []string
	ValidateTimeout time.Duration
	// OnDrained runs on the engine goroutine each time the last outstanding
	// item completes. It must not call back into the engine synchronously.
	OnDrained func(Snapshot)
}

// Engine owns every work item and worker session. All state lives on the
// goroutine started by Run; public methods post a request to it and wait for
// the synchronous part of the handler to finish.
type Engine struct {
	store           ItemStore
	notify          Notifier
	metrics         Metrics
	logger          *slog.Logger
	required        []string
	validateTimeout time.Duration
	onDrained       func(Snapshot)

	requests chan request
	writes   chan resultWrite
	stopped  chan struct{}
	running  atomic.Bool
	runCtx   context.Context

	// owned by the Run goroutine
	items        map[string]*workItem
	backlog      *backlog
	sessions     *registry
	acquisitions map[SessionID]*acquisition
	nextToken    uint64
	drained      bool
}

type request struct {
	fn   func()
	done chan struct{}
}

type resultWrite struct {
	id     string
	result items.Result
}

// New constructs an engine. Call Run to start processing.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("dispatch: store is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("dispatch: notifier is required")
	}
	if len(opts.RequiredFields) == 0 {
		return nil, errors.New("dispatch: at least one required result field is needed")
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}
	timeout := opts.ValidateTimeout
	if timeout <= 0 {
		timeout = defaultValidateTimeout
	}
	required := make([]string, 0, len(opts.RequiredFields))
	for _, field := range opts.RequiredFields {
		required = append(required, items.NormalizeField(field))
	}
	return &Engine{
		store:           opts.Store,
		notify:          opts.Notifier,
		metrics:         metrics,
		logger:          logging.NewComponentLogger(opts.Logger, "dispatch"),
		required:        required,
		validateTimeout: timeout,
		onDrained:       opts.OnDrained,
		requests:        make(chan request, eventBuffer),
		writes:          make(chan resultWrite, writeBuffer),
		stopped:         make(chan struct{}),
		items:           make(map[string]*workItem),
		backlog:         newBacklog(),
		sessions:        newRegistry(),
		acquisitions:    make(map[SessionID]*acquisition),
		drained:         true,
	}, nil
}

// Run processes events until ctx is cancelled. Pending result writes are
// flushed before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("dispatch: engine already running")
	}
	e.runCtx = ctx

	var writers sync.WaitGroup
	writers.Add(1)
	go func() {
		defer writers.Done()
		e.persistLoop()
	}()
	defer func() {
		close(e.stopped)
		close(e.writes)
		writers.Wait()
	}()

	e.logger.Info("dispatch engine started", logging.Args(
		logging.Int("required_fields", len(e.required)),
		logging.Duration("validate_timeout", e.validateTimeout),
	)...)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("dispatch engine stopping", logging.Int("backlog", e.backlog.len()))
			return nil
		case req := <-e.requests:
			req.fn()
			if req.done != nil {
				close(req.done)
			}
		}
	}
}

// Done is closed once Run has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.stopped
}

func (e *Engine) call(ctx context.Context, fn func()) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case e.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrEngineStopped
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrEngineStopped
	}
}

// post queues fn without waiting. Used by validation goroutines.
func (e *Engine) post(fn func()) {
	select {
	case e.requests <- request{fn: fn}:
	case <-e.stopped:
	}
}

func (e *Engine) persist(id string, result items.Result) {
	e.writes <- resultWrite{id: id, result: result.Clone()}
}

func (e *Engine) persistLoop() {
	for write := range e.writes {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := e.store.SaveResult(ctx, write.id, write.result)
		cancel()
		if errors.Is(err, items.ErrNotFound) {
			// Collected and deleted while the write was queued.
			e.logger.Debug("result write skipped for removed item", logging.String(logging.FieldItemID, write.id))
			continue
		}
		if err != nil {
			logging.ErrorWithContext(e.logger, "result write failed", "result_persist_failed",
				logging.String(logging.FieldItemID, write.id),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the item database and disk space"),
			)
		}
	}
}

// Connect registers a worker session.
func (e *Engine) Connect(ctx context.Context, id SessionID) error {
	return e.call(ctx, func() { e.handleConnect(id) })
}

// Ready asks for work on behalf of a session.
func (e *Engine) Ready(ctx context.Context, id SessionID) error {
	return e.call(ctx, func() { e.handleReady(id) })
}

// Submit merges fields into the session's item result.
func (e *Engine) Submit(ctx context.Context, id SessionID, itemID string, fields map[string]*string) error {
	return e.call(ctx, func() { e.handleSubmit(id, itemID, fields) })
}

// Skip passes the session's current item on without submitting.
func (e *Engine) Skip(ctx context.Context, id SessionID) error {
	return e.call(ctx, func() { e.handleSkip(id) })
}

// Previous reopens the most recent eligible item from the session history.
func (e *Engine) Previous(ctx context.Context, id SessionID) error {
	return e.call(ctx, func() { e.handlePrevious(id) })
}

// Disconnect removes a session and returns its work to the backlog.
func (e *Engine) Disconnect(ctx context.Context, id SessionID) error {
	return e.call(ctx, func() { e.handleDisconnect(id) })
}

// EnqueueNew makes an item available. It reports false when the id is
// already known.
func (e *Engine) EnqueueNew(ctx context.Context, id string, result items.Result) (bool, error) {
	var added bool
	err := e.call(ctx, func() { added = e.handleEnqueue(id, result) })
	return added, err
}

// Forget drops an item the engine no longer needs to track.
func (e *Engine) Forget(ctx context.Context, id string) error {
	var result error
	if err := e.call(ctx, func() { result = e.handleForget(id) }); err != nil {
		return err
	}
	if result != nil {
		return fmt.Errorf("forget %s: %w", id, result)
	}
	return nil
}

// Result returns the engine's current result for an item. It may be ahead of
// the store while result writes are queued.
func (e *Engine) Result(ctx context.Context, id string) (items.Result, error) {
	var (
		out    items.Result
		result error
	)
	if err := e.call(ctx, func() { out, result = e.handleResult(id) }); err != nil {
		return nil, err
	}
	if result != nil {
		return nil, fmt.Errorf("result %s: %w", id, result)
	}
	return out, nil
}

// SetResult merges operator-supplied fields into an item's result. A
// completed item whose result becomes incomplete returns to the backlog.
func (e *Engine) SetResult(ctx context.Context, id string, fields map[string]*string) (items.Result, error) {
	var (
		out    items.Result
		result error
	)
	if err := e.call(ctx, func() { out, result = e.handleSetResult(id, fields) }); err != nil {
		return nil, err
	}
	if result != nil {
		return nil, fmt.Errorf("set result %s: %w", id, result)
	}
	return out, nil
}

// Snapshot returns a copy of engine state.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := e.call(ctx, func() { snap = e.snapshot() })
	return snap, err
}
