package dispatch

// Metrics receives engine counters. Implementations must be safe for use
// from the engine goroutine and the notifier.
type Metrics interface {
	Assigned(origin Origin)
	Submitted(complete bool)
	Skipped(disposition string)
	StaleEvent(event string)
	StoreMiss()
	NoWork()
	NotificationDropped()
	BacklogDepth(n int)
	Sessions(n int)
}

// Skip dispositions reported to Metrics.
const (
	SkipHandoff   = "handoff"
	SkipQueued    = "queued"
	SkipRefresh   = "refresh"
	SkipCompleted = "completed"
)

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) Assigned(Origin) {}
func (NopMetrics) Submitted(bool) {}
func (NopMetrics) Skipped(string) {}
func (NopMetrics) StaleEvent(string) {}
func (NopMetrics) StoreMiss() {}
func (NopMetrics) NoWork() {}
func (NopMetrics) NotificationDropped() {}
func (NopMetrics) BacklogDepth(int) {}
func (NopMetrics) Sessions(int) {}
