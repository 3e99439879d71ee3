package events

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"Divvy/internal/model"
)

// Handler consumes committed ledger events.
type Handler func(evt *model.Event)

// DefaultEnqueueTimeout bounds how long Publish waits for room in a full queue.
const DefaultEnqueueTimeout = 100 * time.Millisecond

// Dispatcher fans ledger events out to handlers on its own goroutine, in publish order.
// Publish waits at most EnqueueTimeout for room in a full queue; events that still do not
// fit are dropped, logged and counted in Dropped.
type Dispatcher struct {
	EnqueueTimeout time.Duration

	queue    chan *model.Event
	mu       sync.RWMutex
	handlers []Handler
	done     chan struct{}
	closeMu  sync.Mutex
	closed   bool
	dropped  atomic.Uint64
}

// NewDispatcher creates a dispatcher with the given buffer size.
func NewDispatcher(buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		EnqueueTimeout: DefaultEnqueueTimeout,
		queue:          make(chan *model.Event, buffer),
		done:           make(chan struct{}),
	}
}

// Subscribe registers a handler. Handlers added after Run starts see only later events.
func (d *Dispatcher) Subscribe(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// Publish enqueues an event, waiting briefly when the queue is full.
func (d *Dispatcher) Publish(evt *model.Event) {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	if d.closed {
		d.drop(evt, "dispatcher closed")
		return
	}
	select {
	case d.queue <- evt:
		return
	default:
	}
	if d.EnqueueTimeout <= 0 {
		d.drop(evt, "event queue full")
		return
	}
	timer := time.NewTimer(d.EnqueueTimeout)
	defer timer.Stop()
	select {
	case d.queue <- evt:
	case <-timer.C:
		d.drop(evt, "event queue full")
	}
}

// Dropped is the number of events that were never queued.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

func (d *Dispatcher) drop(evt *model.Event, why string) {
	n := d.dropped.Add(1)
	log.Printf("[WARN] %s, dropping event %s #%d (%d dropped so far)", why, evt.Type, evt.Sequence, n)
}

// Run delivers events until ctx is cancelled or Close is called, then drains what is queued.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			d.Close()
			d.drain()
			return
		case evt, ok := <-d.queue:
			if !ok {
				return
			}
			d.deliver(evt)
		}
	}
}

// Close stops accepting events. Run returns once the queue is drained.
func (d *Dispatcher) Close() {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}

// Done is closed when Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) drain() {
	for evt := range d.queue {
		d.deliver(evt)
	}
}

func (d *Dispatcher) deliver(evt *model.Event) {
	d.mu.RLock()
	handlers := make([]Handler, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[ERROR] event handler panic on %s #%d: %v", evt.Type, evt.Sequence, r)
				}
			}()
			h(evt)
		}()
	}
}
