package cache

import (
	"fmt"

	"go.uber.org/zap"
)

// NewStore creates the disk-tier byte store based on the store type
func NewStore(storeType, dir string, maxEntries int, log *zap.Logger) (ByteStore, error) {
	switch storeType {
	case "file":
		log.Info("Using file store", zap.String("cache_dir", dir))
		return NewFileStore(dir)
	case "memory":
		log.Info("Using memory store", zap.Int("max_entries", maxEntries))
		return NewMemoryStore(maxEntries), nil
	case "disabled":
		log.Info("Disk cache disabled")
		return NewNoopStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s (supported: file, memory, disabled)", storeType)
	}
}
