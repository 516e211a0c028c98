package hooks

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type asyncEntry[T any] struct {
	name string
	fn   AsyncListener[T]
}

// Dispatcher holds the listeners of one entity type. Registration is
// expected to finish before events are dispatched concurrently.
type Dispatcher[T any] struct {
	mu        sync.RWMutex
	name      string
	listeners map[Event][]Listener[T]
	async     map[Event][]asyncEntry[T]
	queue     *AsyncQueue
	snapshot  func(T) T
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher; name identifies the entity type in logs
func NewDispatcher[T any](name string, logger *zap.Logger) *Dispatcher[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher[T]{
		name:      name,
		listeners: make(map[Event][]Listener[T]),
		async:     make(map[Event][]asyncEntry[T]),
		logger:    logger,
	}
}

// UseQueue enables async listeners. snapshot copies the subject before it
// is handed to another goroutine.
func (d *Dispatcher[T]) UseQueue(queue *AsyncQueue, snapshot func(T) T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = queue
	d.snapshot = snapshot
}

// Listen appends a listener for event
func (d *Dispatcher[T]) Listen(event Event, fn Listener[T]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[event] = append(d.listeners[event], fn)
}

// ListenAsync registers a listener run on the async queue after a
// non-cancelable event
func (d *Dispatcher[T]) ListenAsync(event Event, name string, fn AsyncListener[T]) error {
	if event.Cancelable() {
		return fmt.Errorf("async listeners cannot be attached to cancelable event %s", event)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queue == nil {
		return fmt.Errorf("no async queue configured for %s", d.name)
	}
	d.async[event] = append(d.async[event], asyncEntry[T]{name: name, fn: fn})
	return nil
}

// HasListeners returns true if anything listens to event
func (d *Dispatcher[T]) HasListeners(event Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[event]) > 0 || len(d.async[event]) > 0
}

// Observe registers the hook methods observer implements and returns how
// many events were attached
func (d *Dispatcher[T]) Observe(observer interface{}) int {
	attached := 0
	attach := func(event Event, fn Listener[T]) {
		d.Listen(event, fn)
		attached++
	}

	if o, ok := observer.(CreatingObserver[T]); ok {
		attach(Creating, o.Creating)
	}
	if o, ok := observer.(CreatedObserver[T]); ok {
		attach(Created, o.Created)
	}
	if o, ok := observer.(UpdatingObserver[T]); ok {
		attach(Updating, o.Updating)
	}
	if o, ok := observer.(UpdatedObserver[T]); ok {
		attach(Updated, o.Updated)
	}
	if o, ok := observer.(SavingObserver[T]); ok {
		attach(Saving, o.Saving)
	}
	if o, ok := observer.(SavedObserver[T]); ok {
		attach(Saved, o.Saved)
	}
	if o, ok := observer.(DeletingObserver[T]); ok {
		attach(Deleting, o.Deleting)
	}
	if o, ok := observer.(DeletedObserver[T]); ok {
		attach(Deleted, o.Deleted)
	}
	if o, ok := observer.(RestoringObserver[T]); ok {
		attach(Restoring, o.Restoring)
	}
	if o, ok := observer.(RestoredObserver[T]); ok {
		attach(Restored, o.Restored)
	}

	return attached
}

// Dispatch runs the listeners of event in registration order. The first
// Cancel skips the remaining listeners and is returned.
func (d *Dispatcher[T]) Dispatch(ctx context.Context, event Event, subject T) Result {
	d.mu.RLock()
	listeners := d.listeners[event]
	async := d.async[event]
	queue, snapshot := d.queue, d.snapshot
	d.mu.RUnlock()

	for i, fn := range listeners {
		if fn(ctx, subject) == Cancel {
			d.logger.Debug("lifecycle event canceled",
				zap.String("type", d.name),
				zap.String("event", string(event)),
				zap.Int("listener", i),
			)
			return Cancel
		}
	}

	for _, entry := range async {
		d.enqueue(queue, snapshot, event, entry, subject)
	}

	return Proceed
}

func (d *Dispatcher[T]) enqueue(queue *AsyncQueue, snapshot func(T) T, event Event, entry asyncEntry[T], subject T) {
	if snapshot != nil {
		subject = snapshot(subject)
	}
	fn := entry.fn
	task := AsyncTask{
		Name: fmt.Sprintf("%s.%s:%s", d.name, event, entry.name),
		Fn: func(ctx context.Context) error {
			return fn(ctx, subject)
		},
	}
	if err := queue.Enqueue(task); err != nil {
		// async listeners never fail the operation
		d.logger.Error("failed to enqueue async listener",
			zap.String("task", task.Name),
			zap.Error(err),
		)
	}
}
