// Package scheduler fetches keyed images through a memory tier, a disk tier
// and a transport, running at most one task per key.
//
// Requests for a key that is already in flight join the running task instead
// of starting a new one. Pending tasks run on a bounded worker pool in
// priority order. Results are delivered to subscribers on a single completion
// goroutine, in subscription order.
package scheduler

import (
	"container/heap"
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pixfetch/internal/cache"
	"pixfetch/internal/codec"
	"pixfetch/internal/transport"
)

const (
	// DefaultWorkers is the worker pool width for interactive use.
	DefaultWorkers = 16

	// DefaultDiskWriters is the number of background disk writers.
	DefaultDiskWriters = 2

	diskWriteBacklog = 64
)

// Subscription identifies one registered callback.
// The zero value means the request was ignored.
type Subscription struct {
	ID  uuid.UUID
	Key cache.ResourceKey

	done chan struct{}
}

func (s Subscription) Valid() bool {
	return s.ID != uuid.Nil
}

// Done returns a channel that is closed when the subscription ends without
// its callback being invoked: by Cancel, CancelAll, Unsubscribe or Close.
// It is never closed for a subscription whose callback runs, and is nil
// for the zero Subscription.
func (s Subscription) Done() <-chan struct{} {
	return s.done
}

// Stats is a point-in-time snapshot of scheduler state.
type Stats struct {
	InFlight      int   `json:"in_flight"`
	Queued        int   `json:"queued"`
	Executing     int   `json:"executing"`
	MemoryEntries int   `json:"memory_entries"`
	MemoryCost    int64 `json:"memory_cost"`
	MemoryLimit   int64 `json:"memory_limit"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers sets the number of tasks executed in parallel.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithDiskWriters sets the number of goroutines writing to the disk tier.
func WithDiskWriters(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.diskWriters = n
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// Scheduler owns the in-flight table and both cache tiers.
type Scheduler struct {
	memory    *cache.MemoryCache
	disk      *cache.DiskCache
	transport transport.Transport
	codec     codec.Codec
	log       *zap.Logger

	workers     int
	diskWriters int

	mu       sync.Mutex
	cond     *sync.Cond
	inflight map[cache.ResourceKey]*Task
	queue    taskQueue
	seq      uint64
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc

	dispatch  *dispatcher
	writes    chan diskWrite
	workerWG  sync.WaitGroup
	writersWG sync.WaitGroup
}

// New creates a Scheduler and starts its workers.
// A nil memory cache gets the default limit; a nil disk cache disables the disk tier.
func New(memory *cache.MemoryCache, disk *cache.DiskCache, t transport.Transport, c codec.Codec, opts ...Option) *Scheduler {
	if memory == nil {
		memory = cache.NewMemoryCache(cache.DefaultMemoryLimit)
	}
	if disk == nil {
		disk = cache.NewDiskCache(cache.NewNoopStore(), nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		memory:      memory,
		disk:        disk,
		transport:   t,
		codec:       c,
		log:         zap.NewNop(),
		workers:     DefaultWorkers,
		diskWriters: DefaultDiskWriters,
		inflight:    make(map[cache.ResourceKey]*Task),
		ctx:         ctx,
		cancel:      cancel,
		dispatch:    newDispatcher(),
		writes:      make(chan diskWrite, diskWriteBacklog),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	s.cond = sync.NewCond(&s.mu)

	for i := 0; i < s.workers; i++ {
		s.workerWG.Add(1)
		go s.worker()
	}
	for i := 0; i < s.diskWriters; i++ {
		s.writersWG.Add(1)
		go s.diskWriter()
	}

	s.log.Info("Scheduler started",
		zap.Int("workers", s.workers),
		zap.Int("disk_writers", s.diskWriters),
		zap.Int64("memory_limit", memory.Limit()),
	)
	return s
}

// Request asks for key at the given priority. cb receives the result with
// tag passed through unchanged.
//
//   - An empty URL is ignored: no callback, zero Subscription.
//   - A memory hit is delivered without creating a task.
//   - A key already in flight gains a subscriber, and its priority is raised
//     if priority is higher. It is never lowered here.
//   - Otherwise a new task is queued.
func (s *Scheduler) Request(key cache.ResourceKey, priority Priority, tag any, cb Callback) Subscription {
	if key.URL == "" {
		return Subscription{}
	}
	if cb == nil {
		cb = func(Result) {}
	}
	sub := subscriber{id: uuid.New(), tag: tag, cb: cb, dropped: make(chan struct{})}
	subscription := Subscription{ID: sub.id, Key: key, done: sub.dropped}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Subscription{}
	}

	if img, ok := s.memory.Get(key); ok {
		s.log.Debug("Memory hit", zap.Stringer("key", key))
		s.dispatch.post(func() {
			cb(Result{Image: img, URL: key.URL, Key: key, Tag: tag})
		})
		return subscription
	}

	if t, ok := s.inflight[key]; ok {
		t.subscribers = append(t.subscribers, sub)
		if priority > t.Priority() {
			t.setPriority(priority)
			if t.index >= 0 {
				heap.Fix(&s.queue, t.index)
			}
		}
		s.log.Debug("Joined in-flight task",
			zap.Stringer("key", key),
			zap.Int("subscribers", len(t.subscribers)),
			zap.Stringer("priority", t.Priority()),
		)
		return subscription
	}

	s.seq++
	t := newTask(s.ctx, key, priority, s.seq)
	t.subscribers = append(t.subscribers, sub)
	s.inflight[key] = t
	heap.Push(&s.queue, t)
	s.cond.Signal()

	s.log.Debug("Queued task", zap.Stringer("key", key), zap.Stringer("priority", priority))
	return subscription
}

// Unsubscribe removes one subscriber. Removing the last subscriber of a
// task cancels the task.
func (s *Scheduler) Unsubscribe(sub Subscription) {
	if !sub.Valid() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.inflight[sub.Key]
	if !ok {
		return
	}
	for i, ts := range t.subscribers {
		if ts.id == sub.ID {
			t.subscribers = append(t.subscribers[:i], t.subscribers[i+1:]...)
			close(ts.dropped)
			break
		}
	}
	if len(t.subscribers) == 0 {
		s.cancelLocked(t)
	}
}

// Deprioritize lowers every executing task for url, at any size, to PriorityLow.
func (s *Scheduler) Deprioritize(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, t := range s.inflight {
		if key.URL != url || t.State() != StateExecuting {
			continue
		}
		if t.Priority() > PriorityLow {
			t.setPriority(PriorityLow)
		}
	}
}

// Cancel cancels every in-flight task for url. Subscribers are dropped
// without being called; their Subscription.Done channels are closed.
// Disk writes already handed off still complete.
func (s *Scheduler) Cancel(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, t := range s.inflight {
		if key.URL == url {
			s.cancelLocked(t)
		}
	}
}

// CancelAll cancels every in-flight task.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.inflight {
		s.cancelLocked(t)
	}
}

func (s *Scheduler) cancelLocked(t *Task) {
	if st := t.State(); st == StateFinished || st == StateCancelled {
		return
	}
	t.setState(StateCancelled)
	if s.inflight[t.key] == t {
		delete(s.inflight, t.key)
	}
	if t.index >= 0 {
		heap.Remove(&s.queue, t.index)
	}
	for _, sub := range t.subscribers {
		close(sub.dropped)
	}
	t.subscribers = nil
	t.cancel()
	s.log.Debug("Cancelled task", zap.Stringer("key", t.key))
}

// Stats returns a snapshot of the scheduler and its memory tier.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		InFlight: len(s.inflight),
		Queued:   s.queue.Len(),
	}
	for _, t := range s.inflight {
		if t.State() == StateExecuting {
			st.Executing++
		}
	}
	s.mu.Unlock()

	st.MemoryEntries = s.memory.Len()
	st.MemoryCost = s.memory.Cost()
	st.MemoryLimit = s.memory.Limit()
	return st
}

// Close cancels all tasks, stops the workers, drains pending disk writes
// and delivers callbacks already queued. It must not be called from a callback.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	for _, t := range s.inflight {
		s.cancelLocked(t)
	}
	s.cond.Broadcast()
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(s.writes)
		s.writersWG.Wait()
		s.dispatch.close()
		<-s.dispatch.done
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) worker() {
	defer s.workerWG.Done()

	for {
		s.mu.Lock()
		for s.queue.Len() == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		t := heap.Pop(&s.queue).(*Task)
		t.setState(StateExecuting)
		s.mu.Unlock()

		img, err := s.resolve(t)
		s.finish(t, img, err)
	}
}

// finish moves t to Finished, caches the image and fans the result out.
// A task cancelled while running finishes silently.
func (s *Scheduler) finish(t *Task, img *codec.Image, err error) {
	defer t.cancel()

	s.mu.Lock()
	if t.State() != StateExecuting {
		s.mu.Unlock()
		return
	}
	t.setState(StateFinished)
	if s.inflight[t.key] == t {
		delete(s.inflight, t.key)
	}
	if img != nil {
		s.memory.Put(t.key, img, img.Cost())
	}
	subs := t.subscribers
	t.subscribers = nil
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("Fetch failed", zap.Stringer("key", t.key), zap.Error(err))
	}

	key := t.key
	s.dispatch.post(func() {
		for _, sub := range subs {
			sub.cb(Result{Image: img, URL: key.URL, Key: key, Tag: sub.tag, Err: err})
		}
	})
}

// writeBehind hands a disk write to the background writers. Writes are
// best-effort: when the backlog is full the write is dropped.
func (s *Scheduler) writeBehind(w diskWrite) {
	select {
	case s.writes <- w:
	default:
		s.log.Warn("Disk write backlog full, dropping write", zap.Stringer("key", w.key))
	}
}

// diskWriter stores write-behind jobs. Failures are logged and dropped.
func (s *Scheduler) diskWriter() {
	defer s.writersWG.Done()

	for w := range s.writes {
		if w.original != nil {
			if err := s.disk.WriteOriginalIfAbsent(w.key.URL, w.original); err != nil {
				s.log.Warn("Failed to write original to disk cache", zap.String("url", w.key.URL), zap.Error(err))
			}
		}
		if w.scaled != nil {
			if err := s.disk.WriteScaledIfAbsent(w.key, w.scaled); err != nil {
				s.log.Warn("Failed to write scaled image to disk cache", zap.Stringer("key", w.key), zap.Error(err))
			}
		}
	}
}

// task returns the in-flight task for key, if any.
func (s *Scheduler) task(key cache.ResourceKey) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.inflight[key]
	return t, ok
}
