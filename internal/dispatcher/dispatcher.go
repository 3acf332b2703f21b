// Package dispatcher routes named events to handlers. The scheduler feeds it
// display intents, which are handled inline, and run recording events, which
// are queued so storage latency never stalls a frame.
package dispatcher

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Queued is the result of dispatching to a buffered handler.
const Queued = "queued"

var (
	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("dispatcher closed")
	// ErrUnknownCommand is returned for commands with no handler.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrQueueFull is returned when a non-blocking queue drops an event.
	ErrQueueFull = errors.New("queue full")
)

// Event is a named command with an optional payload.
type Event struct {
	Command   string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger is the logging surface the dispatcher needs. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*options)

type options struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered runs the handler on its own goroutine behind a queue of size.
func Buffered(size int) Option {
	return func(o *options) { o.bufferSize = size }
}

// Blocking makes a full queue wait for room instead of dropping the event.
func Blocking() Option {
	return func(o *options) { o.blocking = true }
}

// Logged logs each event at debug level and failures at error level.
func Logged() Option {
	return func(o *options) { o.logged = true }
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger  Logger
	metrics *instruments

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	queues   map[string]*queue
	closed   bool

	// pending counts events accepted by a queue and not yet handled.
	pending sync.WaitGroup
	workers sync.WaitGroup
}

// New creates a Dispatcher. Metrics go to the global OTel meter provider.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
		queues:   make(map[string]*queue),
	}
	m, err := newInstruments(d.queueDepths)
	if err != nil {
		return nil, err
	}
	d.metrics = m
	return d, nil
}

// Register installs h for command. Registering a command again replaces the
// handler; the old queue, if any, is drained in the background.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	handler := h
	if o.bufferSize > 0 {
		q := d.startQueue(command, o.bufferSize, o.blocking, h)
		handler = q.enqueue
	}
	if o.logged {
		handler = d.logging(command, handler)
	}

	d.mu.Lock()
	d.handlers[command] = handler
	d.mu.Unlock()
}

// Dispatch hands e to its handler. Buffered handlers return Queued at once.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	closed := d.closed
	d.mu.RUnlock()

	switch {
	case closed:
		return nil, ErrClosed
	case !ok:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	return h(e)
}

// HasHandler reports whether command has a handler.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// Flush waits until every queued event has been handled. It must not race
// with Dispatch calls for buffered commands.
func (d *Dispatcher) Flush() {
	d.pending.Wait()
}

// Close rejects further events, drains every queue and waits for the queue
// goroutines. Closing twice is a no-op.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		q.close()
	}
	d.mu.Unlock()

	d.workers.Wait()
}

func (d *Dispatcher) startQueue(command string, size int, blocking bool, h HandlerFunc) *queue {
	q := &queue{
		command:  command,
		events:   make(chan Event, size),
		blocking: blocking,
		handle:   h,
		d:        d,
	}

	d.mu.Lock()
	if old, ok := d.queues[command]; ok {
		old.close()
	}
	d.queues[command] = q
	d.mu.Unlock()

	d.workers.Add(1)
	go q.drain()
	return q
}

func (d *Dispatcher) queueDepths() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	depths := make(map[string]int, len(d.queues))
	for cmd, q := range d.queues {
		depths[cmd] = len(q.events)
	}
	return depths
}

func (d *Dispatcher) logging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("Handling event", "command", command, "payload", fmt.Sprintf("%T", e.Payload))

		result, err := h(e)
		if err != nil {
			d.logger.Error("Event failed", "command", command, "duration", time.Since(start), "error", err)
			return result, err
		}
		d.logger.Debug("Event handled", "command", command, "duration", time.Since(start))
		return result, nil
	}
}

// queue feeds one command's events to its handler on a single goroutine, so
// events of the same command are handled in dispatch order.
type queue struct {
	command  string
	events   chan Event
	blocking bool
	handle   HandlerFunc
	d        *Dispatcher

	// mu is held for reading across every send, so close never closes
	// events under a sender.
	mu     sync.RWMutex
	closed bool
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.events)
}

// enqueue may run after Dispatch released the dispatcher lock, so a Close or
// a re-Register can have retired the queue in between.
func (q *queue) enqueue(e Event) (any, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrClosed
	}

	q.d.pending.Add(1)
	if q.blocking {
		q.events <- e
		return Queued, nil
	}
	select {
	case q.events <- e:
		return Queued, nil
	default:
		q.d.pending.Done()
		q.d.metrics.drop(q.command)
		return nil, fmt.Errorf("%w: %s", ErrQueueFull, q.command)
	}
}

func (q *queue) drain() {
	defer q.d.workers.Done()
	for e := range q.events {
		if _, err := q.handle(e); err != nil {
			q.d.logger.Error("Queued event failed", "command", q.command, "error", err)
		}
		q.d.metrics.processed(q.command)
		q.d.pending.Done()
	}
}
