package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls buffering and the per-event delivery policy.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops an event that finds the buffer full instead of waiting.
	DropIfFull bool
	// Retain lists event types that always wait for buffer space, even with DropIfFull.
	Retain []string
	// Now stamps events emitted without a timestamp. Defaults to time.Now.
	Now func() time.Time
}

// Dispatcher forwards events to a sink from one background goroutine.
//
// Events keep their emission order. Drops are counted per event type.
type Dispatcher struct {
	sink   Sink
	queue  chan Event
	stop   chan struct{}
	wg     sync.WaitGroup
	drop   bool
	retain map[string]struct{}
	now    func() time.Time

	closed    atomic.Bool
	closeOnce sync.Once

	mu      sync.Mutex
	dropped map[string]uint64
	total   atomic.Uint64
}

// NewDispatcher starts a dispatcher, or returns nil when cfg is disabled. A nil
// dispatcher accepts and discards every call.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	d := &Dispatcher{
		sink:    sink,
		queue:   make(chan Event, cfg.BufferSize),
		stop:    make(chan struct{}),
		drop:    cfg.DropIfFull,
		retain:  make(map[string]struct{}, len(cfg.Retain)),
		now:     cfg.Now,
		dropped: make(map[string]uint64),
	}
	for _, t := range cfg.Retain {
		d.retain[t] = struct{}{}
	}

	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(context.Background(), ev)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(context.Background(), ev)
		default:
			return
		}
	}
}

// Emit queues ev. Droppable events are counted and discarded when the buffer is
// full; retained ones wait until there is room, ctx is done or the dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = d.now().UTC()
	}

	if _, keep := d.retain[ev.EventType]; d.drop && !keep {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.countDrop(ev.EventType)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.countDrop(ev.EventType)
	case <-d.stop:
	}
}

func (d *Dispatcher) countDrop(eventType string) {
	d.total.Add(1)
	d.mu.Lock()
	d.dropped[eventType]++
	d.mu.Unlock()
}

// Close stops accepting events and waits until the buffer is delivered.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

// Dropped returns the number of events lost to backpressure or cancellation.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.total.Load()
}

// DroppedByType returns a copy of the drop counts keyed by event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	out := make(map[string]uint64)
	if d == nil {
		return out
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range d.dropped {
		out[k] = v
	}
	return out
}
