// Package events provides a lightweight pub/sub event bus for call
// observability. Sessions publish lifecycle, gate, turn, and provider
// events; metrics exporters and telemetry spans subscribe to them.
package events

import "sync"

const (
	defaultWorkerPoolSize  = 4
	defaultEventBufferSize = 256
)

// Listener is a function that handles events.
type Listener func(*Event)

// Option configures an EventBus.
type Option func(*EventBus)

// WithWorkerPoolSize sets the number of dispatch workers. Values below 1
// are ignored.
func WithWorkerPoolSize(n int) Option {
	return func(eb *EventBus) {
		if n > 0 {
			eb.poolSize = n
		}
	}
}

// WithEventBufferSize sets the publish buffer capacity. Values below 1
// are ignored.
func WithEventBufferSize(n int) Option {
	return func(eb *EventBus) {
		if n > 0 {
			eb.bufferSize = n
		}
	}
}

// registration wraps a listener so it can be removed by identity.
type registration struct {
	fn Listener
}

// EventBus manages event distribution to listeners.
//
// Publishing never blocks the media path: events are handed to a worker
// pool through a buffered channel, and Publish drops the event when the
// buffer is full. Panics in listeners are swallowed. Close drains any
// queued events before returning.
type EventBus struct {
	mu              sync.RWMutex
	listeners       map[EventType][]*registration
	globalListeners []*registration
	closed          bool

	poolSize   int
	bufferSize int
	events     chan *Event
	workers    sync.WaitGroup
	closeOnce  sync.Once
}

// NewEventBus creates a new event bus and starts its dispatch workers.
func NewEventBus(opts ...Option) *EventBus {
	eb := &EventBus{
		listeners:  make(map[EventType][]*registration),
		poolSize:   defaultWorkerPoolSize,
		bufferSize: defaultEventBufferSize,
	}
	for _, opt := range opts {
		opt(eb)
	}

	eb.events = make(chan *Event, eb.bufferSize)
	eb.workers.Add(eb.poolSize)
	for range eb.poolSize {
		go eb.worker()
	}
	return eb
}

func (eb *EventBus) worker() {
	defer eb.workers.Done()
	for event := range eb.events {
		eb.dispatch(event)
	}
}

// Subscribe registers a listener for a specific event type and returns a
// function that removes it.
func (eb *EventBus) Subscribe(eventType EventType, listener Listener) func() {
	reg := &registration{fn: listener}

	eb.mu.Lock()
	eb.listeners[eventType] = append(eb.listeners[eventType], reg)
	eb.mu.Unlock()

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.listeners[eventType] = removeRegistration(eb.listeners[eventType], reg)
	}
}

// SubscribeAll registers a listener for all event types and returns a
// function that removes it.
func (eb *EventBus) SubscribeAll(listener Listener) func() {
	reg := &registration{fn: listener}

	eb.mu.Lock()
	eb.globalListeners = append(eb.globalListeners, reg)
	eb.mu.Unlock()

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.globalListeners = removeRegistration(eb.globalListeners, reg)
	}
}

func removeRegistration(regs []*registration, target *registration) []*registration {
	for i, reg := range regs {
		if reg == target {
			return append(regs[:i], regs[i+1:]...)
		}
	}
	return regs
}

// Publish queues an event for delivery. It reports whether the event was
// accepted; it returns false after Close or when the buffer is full.
func (eb *EventBus) Publish(event *Event) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return false
	}

	select {
	case eb.events <- event:
		return true
	default:
		return false
	}
}

func (eb *EventBus) dispatch(event *Event) {
	eb.mu.RLock()
	typeListeners := eb.listeners[event.Type]

	specificListeners := make([]*registration, len(typeListeners))
	copy(specificListeners, typeListeners)

	globalListeners := make([]*registration, len(eb.globalListeners))
	copy(globalListeners, eb.globalListeners)
	eb.mu.RUnlock()

	for _, reg := range specificListeners {
		safeInvoke(reg.fn, event)
	}
	for _, reg := range globalListeners {
		safeInvoke(reg.fn, event)
	}
}

// Clear removes all listeners (primarily for tests).
func (eb *EventBus) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.listeners = make(map[EventType][]*registration)
	eb.globalListeners = nil
}

// Close stops accepting events, drains the queue, and waits for the
// workers to finish. It is safe to call more than once.
func (eb *EventBus) Close() {
	eb.closeOnce.Do(func() {
		eb.mu.Lock()
		eb.closed = true
		eb.mu.Unlock()

		close(eb.events)
		eb.workers.Wait()
	})
}

func safeInvoke(listener Listener, event *Event) {
	defer func() { _ = recover() }()
	listener(event)
}
