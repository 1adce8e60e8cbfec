package event

import (
	"sync"
)

// EventHandler handles domain events
type EventHandler interface {
	// Handle processes the event
	Handle(event DomainEvent) error
	// HandledEvents returns the event names this handler handles, "*" for all
	HandledEvents() []string
}

// EventDispatcher dispatches domain events to registered handlers
type EventDispatcher interface {
	// Dispatch sends an event to all registered handlers
	Dispatch(event DomainEvent)
	// Subscribe registers a handler for events
	Subscribe(handler EventHandler)
}

// InMemoryDispatcher is an in-memory implementation of EventDispatcher.
// A bootstrap run dispatches synchronously so handlers observe events before
// ResolveArtifacts returns. The sweep daemon dispatches asynchronously and
// calls Wait before exiting.
type InMemoryDispatcher struct {
	handlers map[string][]EventHandler
	mu       sync.RWMutex
	async    bool
	pending  sync.WaitGroup
}

// NewInMemoryDispatcher creates a new InMemoryDispatcher
func NewInMemoryDispatcher(async bool) *InMemoryDispatcher {
	return &InMemoryDispatcher{
		handlers: make(map[string][]EventHandler),
		async:    async,
	}
}

// Dispatch sends an event to the handlers of its name, then to the "*" handlers
func (d *InMemoryDispatcher) Dispatch(event DomainEvent) {
	d.mu.RLock()
	named := d.handlers[event.EventName()]
	wildcard := d.handlers["*"]
	d.mu.RUnlock()

	targets := make([]EventHandler, 0, len(named)+len(wildcard))
	targets = append(targets, named...)
	targets = append(targets, wildcard...)

	if !d.async {
		for _, handler := range targets {
			_ = handler.Handle(event)
		}
		return
	}

	if len(targets) == 0 {
		return
	}
	// Handlers of one event run in order on a single goroutine
	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		for _, handler := range targets {
			_ = handler.Handle(event)
		}
	}()
}

// Subscribe registers a handler for events
func (d *InMemoryDispatcher) Subscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, eventName := range handler.HandledEvents() {
		d.handlers[eventName] = append(d.handlers[eventName], handler)
	}
}

// Wait blocks until every asynchronously dispatched event has been handled
func (d *InMemoryDispatcher) Wait() {
	d.pending.Wait()
}

// Ensure dispatchers implement EventDispatcher
var (
	_ EventDispatcher = (*InMemoryDispatcher)(nil)
	_ EventDispatcher = (*NullDispatcher)(nil)
)

// NullDispatcher is a no-op dispatcher for when events are not needed
type NullDispatcher struct{}

// NewNullDispatcher creates a new NullDispatcher
func NewNullDispatcher() *NullDispatcher {
	return &NullDispatcher{}
}

// Dispatch does nothing
func (d *NullDispatcher) Dispatch(event DomainEvent) {}

// Subscribe does nothing
func (d *NullDispatcher) Subscribe(handler EventHandler) {}
