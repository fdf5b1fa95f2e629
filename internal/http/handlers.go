package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pixfetch/internal/cache"
	"pixfetch/internal/codec"
	"pixfetch/internal/scheduler"
	"pixfetch/internal/transport"
)

// Scheduler is the part of scheduler.Scheduler the handlers drive.
type Scheduler interface {
	Request(key cache.ResourceKey, priority scheduler.Priority, tag any, cb scheduler.Callback) scheduler.Subscription
	Unsubscribe(sub scheduler.Subscription)
	Deprioritize(url string)
	Cancel(url string)
	CancelAll()
	Stats() scheduler.Stats
}

type Handlers struct {
	sched         Scheduler
	logger        *zap.Logger
	allowedOrigin string
}

func New(sched Scheduler, logger *zap.Logger, allowedOrigin string) *Handlers {
	return &Handlers{
		sched:         sched,
		logger:        logger,
		allowedOrigin: allowedOrigin,
	}
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		ip := h.extractIP(r)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		wrapped.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		bytes := wrapped.bytesWritten

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("ip", ip),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", bytes),
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigin := ""

		if h.allowedOrigin != "" {
			allowedOrigin = h.allowedOrigin
		} else {
			host := r.Host
			if origin != "" && (strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host)) {
				allowedOrigin = origin
			} else if origin == "" {
				allowedOrigin = "*"
			}
		}

		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HandleImage handles GET /api/images?url=&w=&h=&priority=
// It waits for the scheduler to resolve the image. A request cancelled on
// the scheduler side gets 503; a client that goes away drops its subscription.
func (h *Handlers) HandleImage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	url := q.Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}

	width, err := strconv.Atoi(q.Get("w"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid w parameter")
		return
	}
	height, err := strconv.Atoi(q.Get("h"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid h parameter")
		return
	}
	priority, err := scheduler.ParsePriority(q.Get("priority"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := cache.ResourceKey{URL: url, Width: width, Height: height}
	results := make(chan scheduler.Result, 1)
	sub := h.sched.Request(key, priority, nil, func(res scheduler.Result) {
		results <- res
	})
	if !sub.Valid() {
		writeError(w, http.StatusServiceUnavailable, "scheduler is shutting down")
		return
	}

	var res scheduler.Result
	select {
	case res = <-results:
	case <-sub.Done():
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
		return
	case <-r.Context().Done():
		h.sched.Unsubscribe(sub)
		h.logger.Debug("Client went away", zap.Stringer("key", key))
		return
	}

	if res.Err != nil {
		h.writeResultError(w, key, res.Err)
		return
	}

	img := res.Image
	w.Header().Set("Content-Type", http.DetectContentType(img.Encoded))
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Encoded)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Image-Width", strconv.Itoa(img.Width))
	w.Header().Set("X-Image-Height", strconv.Itoa(img.Height))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.Encoded); err != nil {
		h.logger.Warn("Failed to write image response", zap.Stringer("key", key), zap.Error(err))
	}
}

// HandleDeprioritize handles POST /api/images/deprioritize?url=
func (h *Handlers) HandleDeprioritize(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}
	h.sched.Deprioritize(url)
	w.WriteHeader(http.StatusNoContent)
}

// HandleCancel handles DELETE /api/images?url=
func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}
	h.sched.Cancel(url)
	w.WriteHeader(http.StatusNoContent)
}

// HandleCancelAll handles DELETE /api/images/all
func (h *Handlers) HandleCancelAll(w http.ResponseWriter, r *http.Request) {
	h.sched.CancelAll()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.sched.Stats()); err != nil {
		h.logger.Warn("Failed to encode stats", zap.Error(err))
	}
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// writeResultError maps a scheduler failure to an HTTP status.
func (h *Handlers) writeResultError(w http.ResponseWriter, key cache.ResourceKey, err error) {
	switch {
	case errors.Is(err, codec.ErrInvalidSize):
		writeError(w, http.StatusBadRequest, "invalid target size")
	case errors.Is(err, transport.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, "invalid image URL")
	case errors.Is(err, transport.ErrNotFound):
		writeError(w, http.StatusNotFound, "image not found")
	case errors.Is(err, transport.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, transport.ErrTooLarge):
		writeError(w, http.StatusBadRequest, "image too large")
	case errors.Is(err, scheduler.ErrTransport):
		writeError(w, http.StatusBadGateway, "failed to fetch image")
	case errors.Is(err, scheduler.ErrDecode):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported image format")
	default:
		h.logger.Error("Failed to resolve image", zap.Stringer("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "image processing failed")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(message))
}

// Not for real production use due to potential spoofing
// but it's fine for a demo
func (h *Handlers) extractIP(r *http.Request) string {
	ip := r.Header.Get("X-Real-Ip")
	if ip != "" {
		return strings.Split(ip, ":")[0]
	}

	addr := r.RemoteAddr
	if addr != "" {
		return strings.Split(addr, ":")[0]
	}

	return "unknown"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
