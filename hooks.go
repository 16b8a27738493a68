package telnet

import "sync"

// EventHook is a callback registered to receive one of the engine's event
// types. Unlike the teacher's terminal-event-pump, hooks fire synchronously
// from inside whichever engine call produced the event - there is no
// channel or background loop, per the engine's single-threaded contract.
type EventHook[T any] func(engine *Engine, data T)

// EventPublisher registers and fires hooks for one event type.
type EventPublisher[U any] struct {
	lock sync.Mutex

	registeredHooks []EventHook[U]
}

// NewPublisher creates a publisher pre-populated with hooks, typically a
// slice from the EventHooks value handed to NewEngine.
func NewPublisher[U any, T ~func(engine *Engine, data U)](hooks []T) *EventPublisher[U] {
	var converted []EventHook[U]
	for _, hook := range hooks {
		converted = append(converted, EventHook[U](hook))
	}

	return &EventPublisher[U]{registeredHooks: converted}
}

// Register adds a single hook to receive future events from this publisher.
func (e *EventPublisher[U]) Register(hook EventHook[U]) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.registeredHooks = append(e.registeredHooks, hook)
}

// Fire calls every registered hook in registration order.
func (e *EventPublisher[U]) Fire(engine *Engine, data U) {
	e.lock.Lock()
	hooks := make([]EventHook[U], len(e.registeredHooks))
	copy(hooks, e.registeredHooks)
	e.lock.Unlock()

	for _, hook := range hooks {
		hook(engine, data)
	}
}

// MessageHandler receives decoded plaintext from the peer.
type MessageHandler func(engine *Engine, text string)

// ErrorHandler receives non-fatal transport errors (a failed write, flush
// or close). Parse and negotiation warnings go to the logger only.
type ErrorHandler func(engine *Engine, err error)

// StateHandler receives connection lifecycle transitions.
type StateHandler func(engine *Engine, state ConnectionState)

// NotifyHandler receives a lifecycle event that carries no payload beyond
// the engine itself (login_required, login_failed, logged_in, logged_out).
type NotifyHandler func(engine *Engine)

// ConnectionErrorKind classifies why a connection attempt or an established
// connection failed, for the connection_error event.
type ConnectionErrorKind int

const (
	ConnectionErrorUnknown ConnectionErrorKind = iota
	ConnectionErrorDialFailed
	ConnectionErrorReadFailed
	ConnectionErrorWriteFailed
)

// ConnectionError is the payload of the connection_error event.
type ConnectionError struct {
	Kind ConnectionErrorKind
	Err  error
}

// ConnectionErrorHandler receives transport-level failures.
type ConnectionErrorHandler func(engine *Engine, err ConnectionError)

// notifyPublisher is EventPublisher's counterpart for the four zero-payload
// lifecycle events; NotifyHandler's signature has no data parameter for
// EventPublisher's generic constraint to latch onto, so it gets its own
// minimal, non-generic implementation instead.
type notifyPublisher struct {
	lock  sync.Mutex
	hooks []NotifyHandler
}

func newNotifyPublisher(hooks []NotifyHandler) *notifyPublisher {
	return &notifyPublisher{hooks: append([]NotifyHandler(nil), hooks...)}
}

func (p *notifyPublisher) Register(hook NotifyHandler) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.hooks = append(p.hooks, hook)
}

func (p *notifyPublisher) Fire(engine *Engine) {
	p.lock.Lock()
	hooks := make([]NotifyHandler, len(p.hooks))
	copy(hooks, p.hooks)
	p.lock.Unlock()

	for _, hook := range hooks {
		hook(engine)
	}
}

// EventHooks is the set of callbacks an application can pre-register by
// passing it to NewEngine; more can be added later with Engine.Register*
// methods.
type EventHooks struct {
	Message         []MessageHandler
	EncounteredErr  []ErrorHandler
	StateChange     []StateHandler
	ConnectionError []ConnectionErrorHandler

	LoginRequired []NotifyHandler
	LoginFailed   []NotifyHandler
	LoggedIn      []NotifyHandler
	LoggedOut     []NotifyHandler
}
