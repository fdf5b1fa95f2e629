package transport

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Deduper shares one underlying fetch between concurrent callers asking for
// the same URL, e.g. two sizes of the same image.
//
// The shared fetch runs on its own context. One caller giving up does not
// abort it for the others; it is cancelled once every waiting caller's ctx
// is done. Each caller still returns as soon as its own ctx is done.
type Deduper struct {
	next  Transport
	group singleflight.Group

	mu    sync.Mutex
	calls map[string]*sharedCall
}

// sharedCall tracks the callers waiting on one URL.
type sharedCall struct {
	waiters int
	ctx     context.Context
	cancel  context.CancelFunc
}

// Dedup wraps next with per-URL deduplication.
func Dedup(next Transport) *Deduper {
	return &Deduper{
		next:  next,
		calls: make(map[string]*sharedCall),
	}
}

func (d *Deduper) Fetch(ctx context.Context, url string) ([]byte, error) {
	c, ch := d.join(ctx, url)
	defer d.leave(url, c)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		data, _ := res.Val.([]byte)
		return data, nil
	}
}

func (d *Deduper) join(ctx context.Context, url string) (*sharedCall, <-chan singleflight.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.calls[url]
	if !ok {
		shared, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &sharedCall{ctx: shared, cancel: cancel}
		d.calls[url] = c
	}
	c.waiters++

	// DoChan never blocks; the fetch runs on its own goroutine.
	ch := d.group.DoChan(url, func() (any, error) {
		return d.next.Fetch(c.ctx, url)
	})
	return c, ch
}

// leave drops one waiter. The last one out cancels the shared fetch and
// forgets it so a later caller starts afresh.
func (d *Deduper) leave(url string, c *sharedCall) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c.waiters--
	if c.waiters > 0 {
		return
	}
	c.cancel()
	if d.calls[url] == c {
		delete(d.calls, url)
		d.group.Forget(url)
	}
}
