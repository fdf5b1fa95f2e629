package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
)

type Config struct {
	Port     int
	LogLevel string
	DataDir  string

	CacheType          string
	CacheDir           string
	CacheMemoryEntries int
	CacheNaming        string
	MemoryCacheMB      int64

	FetchWorkers        int
	DiskWriters         int
	FetchTimeoutSeconds int
	MaxSourceSizeMB     int
	FetchRate           float64
	FetchBurst          int

	Codec           string
	VipsMaxCacheMB  int
	VipsConcurrency int
	JPEGQuality     int

	PrefetchURLs   []string
	PrefetchWidth  int
	PrefetchHeight int

	AllowedOrigin string
}

func Load() *Config {
	dataDir := getEnv("DATA_DIR", "/data")

	cfg := &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DataDir:  dataDir,

		CacheType:          getEnv("CACHE", "file"),
		CacheDir:           getEnv("CACHE_DIR", filepath.Join(dataDir, "cache")),
		CacheMemoryEntries: getEnvInt("CACHE_MEMORY_ENTRIES", 2000),
		CacheNaming:        getEnv("CACHE_NAMING", "basename"),
		MemoryCacheMB:      getEnvInt64("MEMORY_CACHE_MB", 250),

		FetchWorkers:        getEnvInt("FETCH_WORKERS", 16),
		DiskWriters:         getEnvInt("DISK_WRITERS", 2),
		FetchTimeoutSeconds: getEnvInt("FETCH_TIMEOUT_SECONDS", 30),
		MaxSourceSizeMB:     getEnvInt("MAX_SOURCE_SIZE_MB", 10),
		FetchRate:           getEnvFloat("FETCH_RATE", 0),
		FetchBurst:          getEnvInt("FETCH_BURST", 10),

		Codec:           getEnv("CODEC", "vips"),
		VipsMaxCacheMB:  getEnvInt("VIPS_MAX_CACHE_MB", 256),
		VipsConcurrency: getEnvInt("VIPS_CONCURRENCY", 1),
		JPEGQuality:     getEnvInt("JPEG_QUALITY", 90),

		PrefetchURLs:   getEnvList("PREFETCH_URLS"),
		PrefetchWidth:  getEnvInt("PREFETCH_WIDTH", 256),
		PrefetchHeight: getEnvInt("PREFETCH_HEIGHT", 256),

		AllowedOrigin: getEnv("ALLOWED_ORIGIN", ""),
	}

	return cfg
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error

	if c.Port <= 0 || c.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	switch c.CacheType {
	case "file":
		if strings.TrimSpace(c.CacheDir) == "" {
			err = multierr.Append(err, fmt.Errorf("CACHE_DIR is required when CACHE=file"))
		}
	case "memory", "disabled":
	default:
		err = multierr.Append(err, fmt.Errorf("CACHE must be file, memory or disabled, got %q", c.CacheType))
	}
	if c.CacheNaming != "basename" && c.CacheNaming != "digest" {
		err = multierr.Append(err, fmt.Errorf("CACHE_NAMING must be basename or digest, got %q", c.CacheNaming))
	}
	if c.MemoryCacheMB <= 0 {
		err = multierr.Append(err, fmt.Errorf("MEMORY_CACHE_MB must be positive, got %d", c.MemoryCacheMB))
	}
	if c.FetchWorkers <= 0 {
		err = multierr.Append(err, fmt.Errorf("FETCH_WORKERS must be positive, got %d", c.FetchWorkers))
	}
	if c.DiskWriters <= 0 {
		err = multierr.Append(err, fmt.Errorf("DISK_WRITERS must be positive, got %d", c.DiskWriters))
	}
	if c.FetchTimeoutSeconds <= 0 {
		err = multierr.Append(err, fmt.Errorf("FETCH_TIMEOUT_SECONDS must be positive, got %d", c.FetchTimeoutSeconds))
	}
	if c.MaxSourceSizeMB <= 0 {
		err = multierr.Append(err, fmt.Errorf("MAX_SOURCE_SIZE_MB must be positive, got %d", c.MaxSourceSizeMB))
	}
	if c.FetchRate < 0 {
		err = multierr.Append(err, fmt.Errorf("FETCH_RATE cannot be negative, got %g", c.FetchRate))
	}
	if c.FetchRate > 0 && c.FetchBurst <= 0 {
		err = multierr.Append(err, fmt.Errorf("FETCH_BURST must be positive when FETCH_RATE is set, got %d", c.FetchBurst))
	}
	if c.Codec != "vips" && c.Codec != "imaging" {
		err = multierr.Append(err, fmt.Errorf("CODEC must be vips or imaging, got %q", c.Codec))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		err = multierr.Append(err, fmt.Errorf("JPEG_QUALITY must be between 1 and 100, got %d", c.JPEGQuality))
	}
	if len(c.PrefetchURLs) > 0 && (c.PrefetchWidth <= 0 || c.PrefetchHeight <= 0) {
		err = multierr.Append(err, fmt.Errorf("PREFETCH_WIDTH and PREFETCH_HEIGHT must be positive, got %dx%d", c.PrefetchWidth, c.PrefetchHeight))
	}

	return err
}

// FetchTimeout returns the per-request transport timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// MemoryCacheBytes returns the memory tier limit in bytes.
func (c *Config) MemoryCacheBytes() int64 {
	return c.MemoryCacheMB * 1024 * 1024
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
