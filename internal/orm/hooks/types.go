// Package hooks dispatches entity lifecycle events to listeners and observers
package hooks

import "context"

// Event names a lifecycle hook point
type Event string

const (
	Creating  Event = "creating"
	Created   Event = "created"
	Updating  Event = "updating"
	Updated   Event = "updated"
	Saving    Event = "saving"
	Saved     Event = "saved"
	Deleting  Event = "deleting"
	Deleted   Event = "deleted"
	Restoring Event = "restoring"
	Restored  Event = "restored"
)

// Events lists every hook point in dispatch-table order
var Events = []Event{
	Creating, Created, Updating, Updated, Saving, Saved,
	Deleting, Deleted, Restoring, Restored,
}

// Cancelable reports whether a Cancel from this event aborts the operation
func (e Event) Cancelable() bool {
	switch e {
	case Creating, Updating, Saving, Deleting, Restoring:
		return true
	default:
		return false
	}
}

// Result is returned by every listener
type Result int

const (
	// Proceed lets the dispatch and the operation continue
	Proceed Result = iota
	// Cancel stops the dispatch; on a cancelable event the operation aborts
	Cancel
)

// String returns the result name
func (r Result) String() string {
	if r == Cancel {
		return "cancel"
	}
	return "proceed"
}

// Listener handles one event for a subject
type Listener[T any] func(ctx context.Context, subject T) Result

// AsyncListener runs on the async queue after a post event; it cannot cancel
type AsyncListener[T any] func(ctx context.Context, subject T) error

// Observer interfaces. An observer implements any subset; attaching it
// registers only the events it implements.
type (
	CreatingObserver[T any] interface {
		Creating(ctx context.Context, subject T) Result
	}
	CreatedObserver[T any] interface {
		Created(ctx context.Context, subject T) Result
	}
	UpdatingObserver[T any] interface {
		Updating(ctx context.Context, subject T) Result
	}
	UpdatedObserver[T any] interface {
		Updated(ctx context.Context, subject T) Result
	}
	SavingObserver[T any] interface {
		Saving(ctx context.Context, subject T) Result
	}
	SavedObserver[T any] interface {
		Saved(ctx context.Context, subject T) Result
	}
	DeletingObserver[T any] interface {
		Deleting(ctx context.Context, subject T) Result
	}
	DeletedObserver[T any] interface {
		Deleted(ctx context.Context, subject T) Result
	}
	RestoringObserver[T any] interface {
		Restoring(ctx context.Context, subject T) Result
	}
	RestoredObserver[T any] interface {
		Restored(ctx context.Context, subject T) Result
	}
)
