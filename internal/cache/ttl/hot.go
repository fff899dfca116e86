package ttl

import (
	"fmt"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"goflare.io/punchclock/internal/models"
)

// hotLayer mirrors decoded entries in process memory so repeated reads skip the durable store.
type hotLayer struct {
	cache  *ristretto.Cache
	logger *zap.Logger
}

func newHotLayer(maxEntries int64, logger *zap.Logger) (*hotLayer, error) {
	if maxEntries < 1 {
		maxEntries = 1
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10 * maxEntries,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}
	return &hotLayer{cache: c, logger: logger}, nil
}

func (h *hotLayer) get(key string) (*models.Entry, bool) {
	value, found := h.cache.Get(key)
	if !found {
		return nil, false
	}
	entry, ok := value.(*models.Entry)
	if !ok {
		h.logger.Error("Invalid hot cache entry type", zap.String("key", key))
		h.cache.Del(key)
		return nil, false
	}
	return entry, true
}

func (h *hotLayer) set(key string, entry *models.Entry) {
	if !h.cache.Set(key, entry, 1) {
		h.logger.Debug("Hot cache dropped entry", zap.String("key", key))
	}
}

func (h *hotLayer) delete(keys ...string) {
	for _, key := range keys {
		h.cache.Del(key)
	}
}

func (h *hotLayer) clear() {
	h.cache.Clear()
}

func (h *hotLayer) close() {
	h.cache.Close()
}
