package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pixfetch/internal/cache"
	"pixfetch/internal/codec"
)

// State is the lifecycle state of a Task.
type State int32

const (
	StatePending State = iota
	StateExecuting
	StateFinished
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateExecuting:
		return "executing"
	case StateFinished:
		return "finished"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Result is delivered to every subscriber of a finished task.
// A nil Image with a nil Err is never delivered; cancellation is silent.
type Result struct {
	Image *codec.Image
	URL   string
	Key   cache.ResourceKey
	// Tag is the opaque value passed to Request, returned unchanged.
	Tag any
	Err error
}

// Callback receives a Result on the scheduler's completion goroutine.
type Callback func(Result)

type subscriber struct {
	id      uuid.UUID
	tag     any
	cb      Callback
	dropped chan struct{} // closed when removed without a callback
}

// Task resolves one ResourceKey through the disk tier and the transport.
// State and priority transitions happen under the scheduler lock; the
// atomics only let the running worker and accessors read them lock-free.
type Task struct {
	key      cache.ResourceKey
	state    atomic.Int32
	priority atomic.Int32
	seq      uint64
	index    int // position in the run queue, -1 when not queued

	subscribers []subscriber

	ctx    context.Context
	cancel context.CancelFunc
}

func newTask(parent context.Context, key cache.ResourceKey, priority Priority, seq uint64) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		key:    key,
		seq:    seq,
		index:  -1,
		ctx:    ctx,
		cancel: cancel,
	}
	t.state.Store(int32(StatePending))
	t.priority.Store(int32(priority))
	return t
}

func (t *Task) Key() cache.ResourceKey {
	return t.key
}

func (t *Task) State() State {
	return State(t.state.Load())
}

func (t *Task) Priority() Priority {
	return Priority(t.priority.Load())
}

func (t *Task) setState(s State) {
	t.state.Store(int32(s))
}

func (t *Task) setPriority(p Priority) {
	t.priority.Store(int32(p))
}

func (t *Task) cancelled() bool {
	return t.State() == StateCancelled
}

// diskWrite is a write-behind job for the disk tier. Nil slices are skipped.
type diskWrite struct {
	key      cache.ResourceKey
	original []byte
	scaled   []byte
}

// resolve runs the lookup chain for t: scaled bytes on disk, then original
// bytes on disk, then the transport. It returns (nil, nil) when the task
// was cancelled between steps.
func (s *Scheduler) resolve(t *Task) (*codec.Image, error) {
	key := t.key
	log := s.log.With(
		zap.String("url", key.URL),
		zap.Int("width", key.Width),
		zap.Int("height", key.Height),
	)

	if t.cancelled() {
		return nil, nil
	}
	if !key.ValidSize() {
		return nil, fmt.Errorf("%w: %w: %dx%d", ErrResize, codec.ErrInvalidSize, key.Width, key.Height)
	}

	if data, ok := s.disk.ReadScaled(key); ok {
		img, err := s.codec.Decode(data)
		if err == nil {
			log.Debug("Scaled disk hit")
			return img, nil
		}
		log.Debug("Scaled disk entry not decodable", zap.Error(err))
	}

	if t.cancelled() {
		return nil, nil
	}
	if data, ok := s.disk.ReadOriginal(key.URL); ok {
		img, scaled, err := s.scale(data, key)
		if err == nil {
			log.Debug("Original disk hit")
			s.writeBehind(diskWrite{key: key, scaled: scaled})
			return img, nil
		}
		log.Debug("Original disk entry not usable", zap.Error(err))
	}

	if t.cancelled() {
		return nil, nil
	}
	data, err := s.transport.Fetch(t.ctx, key.URL)
	if t.cancelled() {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	original, err := s.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if t.cancelled() {
		return nil, nil
	}
	img, scaled, err := s.codec.Resize(original, key.Width, key.Height)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResize, err)
	}

	log.Debug("Fetched from transport", zap.Int("bytes", len(data)))
	s.writeBehind(diskWrite{key: key, original: data, scaled: scaled})
	return img, nil
}

func (s *Scheduler) scale(data []byte, key cache.ResourceKey) (*codec.Image, []byte, error) {
	original, err := s.codec.Decode(data)
	if err != nil {
		return nil, nil, err
	}
	return s.codec.Resize(original, key.Width, key.Height)
}
