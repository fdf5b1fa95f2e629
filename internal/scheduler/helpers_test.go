package scheduler

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pixfetch/internal/cache"
	"pixfetch/internal/codec"
)

const waitFor = 2 * time.Second

// createTestJPEG creates a solid-colour JPEG with the given dimensions.
func createTestJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 128, B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// fakeTransport serves fixed bodies and records every call. A URL with a
// gate blocks until the gate is closed or the fetch is cancelled.
type fakeTransport struct {
	mu      sync.Mutex
	bodies  map[string][]byte
	errs    map[string]error
	gates   map[string]chan struct{}
	calls   []string
	started chan string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		bodies:  make(map[string][]byte),
		errs:    make(map[string]error),
		gates:   make(map[string]chan struct{}),
		started: make(chan string, 128),
	}
}

func (f *fakeTransport) serve(url string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[url] = body
}

func (f *fakeTransport) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

// block makes fetches of url wait; the returned func releases them.
func (f *fakeTransport) block(url string) func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[url] = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (f *fakeTransport) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	gate := f.gates[url]
	body, ok := f.bodies[url]
	err := f.errs[url]
	f.mu.Unlock()

	f.started <- url

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("no body")
	}
	return body, nil
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) CallCount(url string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == url {
			n++
		}
	}
	return n
}

func (f *fakeTransport) waitStarted(t *testing.T, url string) {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case got := <-f.started:
			if got == url {
				return
			}
		case <-deadline:
			t.Fatalf("fetch of %s did not start", url)
		}
	}
}

// recorder collects results delivered to its callbacks.
type recorder struct {
	mu      sync.Mutex
	results []Result
	signal  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{signal: make(chan struct{}, 128)}
}

func (r *recorder) cb(res Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
	r.signal <- struct{}{}
}

func (r *recorder) Results() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

func (r *recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

// wait blocks until n results have been delivered in total.
func (r *recorder) wait(t *testing.T, n int) []Result {
	t.Helper()
	deadline := time.After(waitFor)
	for r.Len() < n {
		select {
		case <-r.signal:
		case <-deadline:
			t.Fatalf("got %d results, want %d", r.Len(), n)
		}
	}
	return r.Results()
}

type fixture struct {
	sched     *Scheduler
	memory    *cache.MemoryCache
	disk      *cache.DiskCache
	store     cache.ByteStore
	transport *fakeTransport
}

func newFixture(t *testing.T, store cache.ByteStore, opts ...Option) *fixture {
	t.Helper()
	if store == nil {
		store = cache.NewMemoryStore(1000)
	}
	f := &fixture{
		memory:    cache.NewMemoryCache(cache.DefaultMemoryLimit),
		disk:      cache.NewDiskCache(store, nil),
		store:     store,
		transport: newFakeTransport(),
	}
	f.sched = New(f.memory, f.disk, f.transport, codec.NewImagingCodec(90), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = f.sched.Close(ctx)
	})
	return f
}

// blockingStore holds every SetIfAbsent until release is called.
type blockingStore struct {
	*cache.MemoryStore
	gate chan struct{}
	once sync.Once
}

func newBlockingStore() *blockingStore {
	return &blockingStore{MemoryStore: cache.NewMemoryStore(1000), gate: make(chan struct{})}
}

func (s *blockingStore) SetIfAbsent(key string, value []byte) (bool, error) {
	<-s.gate
	return s.MemoryStore.SetIfAbsent(key, value)
}

func (s *blockingStore) release() {
	s.once.Do(func() { close(s.gate) })
}

func waitDone(t *testing.T, sub Subscription) {
	t.Helper()
	select {
	case <-sub.Done():
	case <-time.After(waitFor):
		t.Fatalf("subscription for %s was not released", sub.Key)
	}
}
