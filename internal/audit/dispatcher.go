package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher hands events to a Sink on one worker goroutine so callers never
// wait on sink I/O. A nil *Dispatcher discards everything.
type Dispatcher struct {
	sink      Sink
	dropFull  bool
	queue     chan Event
	stop      chan struct{}
	finished  chan struct{}
	mu        sync.RWMutex // guards closing queue against in-flight sends
	shut      bool
	shutOnce  sync.Once
	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// NewDispatcher starts a dispatcher, or returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:     sink,
		dropFull: cfg.DropIfFull,
		queue:    make(chan Event, max(cfg.BufferSize, 1)),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go d.work()
	return d
}

// work exits once queue is closed and empty.
func (d *Dispatcher) work() {
	defer close(d.finished)
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
		d.delivered.Add(1)
	}
}

// Emit queues event, stamping a missing Timestamp. With DropIfFull a full
// queue drops and counts the event. Otherwise Emit waits for room; an
// expired ctx counts as a drop.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.shut {
		return
	}

	if d.dropFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	var expired <-chan struct{}
	if ctx != nil {
		expired = ctx.Done()
	}
	select {
	case d.queue <- event:
	case <-expired:
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close rejects further events, delivers whatever is queued and returns once
// the worker has exited. Safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.shutOnce.Do(func() {
		close(d.stop)
		d.mu.Lock()
		d.shut = true
		close(d.queue)
		d.mu.Unlock()
	})
	<-d.finished
}

// Dropped counts events lost to a full queue or an expired context.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
