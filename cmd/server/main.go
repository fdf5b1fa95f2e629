package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pixfetch/internal/cache"
	"pixfetch/internal/codec"
	"pixfetch/internal/codec/vipscodec"
	"pixfetch/internal/config"
	httphandlers "pixfetch/internal/http"
	"pixfetch/internal/logger"
	"pixfetch/internal/scheduler"
	"pixfetch/internal/transport"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	var imageCodec codec.Codec
	switch cfg.Codec {
	case "vips":
		vipscodec.Startup(cfg.VipsMaxCacheMB, cfg.VipsConcurrency, log)
		defer vipscodec.Shutdown()
		imageCodec = vipscodec.New(cfg.JPEGQuality)
	default:
		imageCodec = codec.NewImagingCodec(cfg.JPEGQuality)
	}

	log.Info("Starting pixfetch server",
		zap.Int("port", cfg.Port),
		zap.String("codec", cfg.Codec),
		zap.String("cache", cfg.CacheType),
	)

	store, err := cache.NewStore(cfg.CacheType, cfg.CacheDir, cfg.CacheMemoryEntries, log)
	if err != nil {
		log.Fatal("Failed to initialize cache", zap.Error(err))
	}
	naming, err := cache.NewNaming(cfg.CacheNaming)
	if err != nil {
		log.Fatal("Failed to initialize cache naming", zap.Error(err))
	}
	disk := cache.NewDiskCache(store, naming)
	memory := cache.NewMemoryCache(cfg.MemoryCacheBytes())

	var transportOpts []transport.Option
	if cfg.FetchRate > 0 {
		transportOpts = append(transportOpts, transport.WithLimiter(rate.NewLimiter(rate.Limit(cfg.FetchRate), cfg.FetchBurst)))
	}
	fetcher := transport.Dedup(transport.NewHTTPTransport(cfg.FetchTimeout(), cfg.MaxSourceSizeMB, transportOpts...))

	sched := scheduler.New(memory, disk, fetcher, imageCodec,
		scheduler.WithWorkers(cfg.FetchWorkers),
		scheduler.WithDiskWriters(cfg.DiskWriters),
		scheduler.WithLogger(log.Named("scheduler")),
	)

	handlers := httphandlers.New(sched, log, cfg.AllowedOrigin)

	if len(cfg.PrefetchURLs) > 0 {
		go prefetch(sched, cfg.PrefetchURLs, cfg.PrefetchWidth, cfg.PrefetchHeight, log)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: httphandlers.NewRouter(handlers),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.Int("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := sched.Close(ctx); err != nil {
		log.Error("Scheduler did not stop cleanly", zap.Error(err))
	}

	log.Info("Server stopped")
}

// prefetch warms both cache tiers for urls at low priority so interactive
// requests always run ahead of it.
func prefetch(sched *scheduler.Scheduler, urls []string, width, height int, log *zap.Logger) {
	log.Info("Starting prefetch", zap.Int("images", len(urls)), zap.Int("width", width), zap.Int("height", height))

	var wg sync.WaitGroup
	for _, u := range urls {
		key := cache.ResourceKey{URL: u, Width: width, Height: height}
		resolved := make(chan struct{})
		sub := sched.Request(key, scheduler.PriorityLow, nil, func(res scheduler.Result) {
			defer close(resolved)
			if res.Err != nil {
				log.Debug("Prefetch failed", zap.Stringer("key", key), zap.Error(res.Err))
			}
		})
		if !sub.Valid() {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-resolved:
			case <-sub.Done():
				log.Debug("Prefetch cancelled", zap.Stringer("key", key))
			}
		}()
	}

	wg.Wait()
	log.Info("Prefetch completed")
}
