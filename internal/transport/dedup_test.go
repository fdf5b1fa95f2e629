package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingTransport blocks every fetch until release is closed.
type countingTransport struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error
}

func newCountingTransport() *countingTransport {
	return &countingTransport{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (c *countingTransport) Fetch(ctx context.Context, url string) ([]byte, error) {
	c.calls.Add(1)
	c.started <- struct{}{}
	select {
	case <-c.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if c.err != nil {
		return nil, c.err
	}
	return []byte(url), nil
}

func TestDedup_SharesConcurrentFetches(t *testing.T) {
	t.Parallel()

	next := newCountingTransport()
	d := Dedup(next)

	const numGoroutines = 10
	var wg sync.WaitGroup
	results := make([][]byte, numGoroutines)
	errs := make([]error, numGoroutines)
	for i := range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = d.Fetch(context.Background(), "http://x/a.png")
		}()
	}

	<-next.started
	// Give the remaining callers time to join the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(next.release)
	wg.Wait()

	assert.Equal(t, int32(1), next.calls.Load())
	for i := range numGoroutines {
		require.NoError(t, errs[i])
		assert.Equal(t, []byte("http://x/a.png"), results[i])
	}
}

func TestDedup_DistinctURLsFetchSeparately(t *testing.T) {
	t.Parallel()

	next := newCountingTransport()
	close(next.release)
	d := Dedup(next)

	a, err := d.Fetch(context.Background(), "http://x/a.png")
	require.NoError(t, err)
	b, err := d.Fetch(context.Background(), "http://x/b.png")
	require.NoError(t, err)

	assert.Equal(t, []byte("http://x/a.png"), a)
	assert.Equal(t, []byte("http://x/b.png"), b)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestDedup_CallerCancelDoesNotAbortOthers(t *testing.T) {
	t.Parallel()

	next := newCountingTransport()
	d := Dedup(next)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := d.Fetch(ctx, "http://x/a.png")
		firstErr <- err
	}()
	<-next.started

	secondDone := make(chan []byte, 1)
	go func() {
		data, err := d.Fetch(context.Background(), "http://x/a.png")
		assert.NoError(t, err)
		secondDone <- data
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(next.release)
	select {
	case data := <-secondDone:
		assert.Equal(t, []byte("http://x/a.png"), data)
	case <-time.After(time.Second):
		t.Fatal("remaining caller did not complete")
	}
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestDedup_PropagatesErrors(t *testing.T) {
	t.Parallel()

	next := newCountingTransport()
	next.err = errors.Join(ErrNotFound, errors.New("404"))
	close(next.release)

	_, err := Dedup(next).Fetch(context.Background(), "http://x/missing.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFunc(t *testing.T) {
	var tr Transport = Func(func(ctx context.Context, url string) ([]byte, error) {
		return []byte(url), nil
	})
	data, err := tr.Fetch(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, []byte("u"), data)
}

func TestDedup_SoleCallerCancelAbortsFetch(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	innerErr := make(chan error, 1)
	d := Dedup(Func(func(ctx context.Context, url string) ([]byte, error) {
		close(started)
		select {
		case <-ctx.Done():
			innerErr <- ctx.Err()
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			innerErr <- nil
			return []byte(url), nil
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := d.Fetch(ctx, "http://x/a.png")
	assert.ErrorIs(t, err, context.Canceled)

	select {
	case err := <-innerErr:
		assert.ErrorIs(t, err, context.Canceled, "inner fetch should see the cancellation")
	case <-time.After(time.Second):
		t.Fatal("inner fetch was not cancelled")
	}
}

func TestDedup_FetchRestartsAfterAllCallersLeave(t *testing.T) {
	t.Parallel()

	next := newCountingTransport()
	d := Dedup(next)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = d.Fetch(ctx, "http://x/a.png")
	}()
	<-next.started
	cancel()
	<-done

	close(next.release)
	data, err := d.Fetch(context.Background(), "http://x/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("http://x/a.png"), data)
	assert.Equal(t, int32(2), next.calls.Load(), "abandoned fetch must not be reused")
}
