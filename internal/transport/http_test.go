package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestHTTPTransport_Fetch(t *testing.T) {
	body := []byte("image bytes")
	var gotUA atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/ok.png":
			_, _ = w.Write(body)
		case "/gone.png":
			w.WriteHeader(http.StatusGone)
		case "/boom.png":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	tr := NewHTTPTransport(5*time.Second, 1, WithUserAgent("pixfetch-test"))

	t.Run("ok", func(t *testing.T) {
		data, err := tr.Fetch(context.Background(), server.URL+"/ok.png")
		require.NoError(t, err)
		assert.Equal(t, body, data)
		assert.Equal(t, "pixfetch-test", gotUA.Load())
	})

	t.Run("not found", func(t *testing.T) {
		_, err := tr.Fetch(context.Background(), server.URL+"/missing.png")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("gone", func(t *testing.T) {
		_, err := tr.Fetch(context.Background(), server.URL+"/gone.png")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("server error", func(t *testing.T) {
		_, err := tr.Fetch(context.Background(), server.URL+"/boom.png")
		assert.ErrorIs(t, err, ErrFetchFailed)
	})
}

func TestHTTPTransport_InvalidURL(t *testing.T) {
	tr := NewHTTPTransport(time.Second, 0)

	for _, raw := range []string{"", "not a url", "ftp://example.com/a.png", "file:///etc/passwd", "http://"} {
		t.Run(raw, func(t *testing.T) {
			_, err := tr.Fetch(context.Background(), raw)
			assert.ErrorIs(t, err, ErrInvalidURL)
		})
	}
}

func TestHTTPTransport_TooLarge(t *testing.T) {
	big := strings.Repeat("x", 1024*1024+1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sized" {
			w.Header().Set("Content-Length", strconv.Itoa(len(big)))
		}
		_, _ = w.Write([]byte(big))
	}))
	defer server.Close()

	tr := NewHTTPTransport(5*time.Second, 1)

	_, err := tr.Fetch(context.Background(), server.URL+"/sized")
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = tr.Fetch(context.Background(), server.URL+"/unsized")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestHTTPTransport_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	tr := NewHTTPTransport(50*time.Millisecond, 0)
	_, err := tr.Fetch(context.Background(), server.URL+"/slow.png")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestHTTPTransport_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	tr := NewHTTPTransport(5*time.Second, 0)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := tr.Fetch(ctx, server.URL+"/slow.png")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPTransport_Limiter(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	// One token, refilled far beyond the test deadline.
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	tr := NewHTTPTransport(5*time.Second, 0, WithLimiter(limiter))

	_, err := tr.Fetch(context.Background(), server.URL+"/a.png")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = tr.Fetch(ctx, server.URL+"/b.png")
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, int32(1), hits.Load(), "throttled request must not reach the server")
}
