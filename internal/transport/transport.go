// Package transport fetches raw image bytes by URL.
package transport

import "context"

// Transport fetches the bytes stored at a URL.
// Cancelling ctx aborts the fetch.
type Transport interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Func adapts a function to the Transport interface.
type Func func(ctx context.Context, url string) ([]byte, error)

func (f Func) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}
