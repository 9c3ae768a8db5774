package dispatch

import "errors"

var (
	// ErrEngineStopped is returned by calls made after Run has exited.
	ErrEngineStopped = errors.New("dispatch engine stopped")
	// ErrUnknownItem is returned when an id was never enqueued or was forgotten.
	ErrUnknownItem = errors.New("unknown work item")
	// ErrItemBusy is returned when an operation needs an item nobody holds.
	ErrItemBusy = errors.New("work item is assigned")
)
