package scheduler

import "sync"

// dispatcher runs posted functions one at a time on a single goroutine in
// post order. The backlog is unbounded so a callback may post (for example
// by calling Request) without blocking itself.
type dispatcher struct {
	mu      sync.Mutex
	pending []func()
	signal  chan struct{}
	closed  bool
	done    chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// post queues fn. Functions posted after close are dropped.
func (d *dispatcher) post(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.pending = append(d.pending, fn)
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// close stops accepting work; already queued functions still run.
func (d *dispatcher) close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	close(d.signal)
}

func (d *dispatcher) run() {
	defer close(d.done)

	for range d.signal {
		d.drain()
	}
	d.drain()
}

func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		batch := d.pending
		d.pending = nil
		d.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			fn()
		}
	}
}
