package ttl

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// bloomFilter answers "definitely not cached" without a store read.
// Removed keys stay in the filter until the next rebuild.
type bloomFilter struct {
	mu            sync.RWMutex
	filter        *bloom.BloomFilter
	expectedItems uint
	fpRate        float64
}

func newBloomFilter(expectedItems uint, fpRate float64) *bloomFilter {
	return &bloomFilter{
		filter:        bloom.NewWithEstimates(expectedItems, fpRate),
		expectedItems: expectedItems,
		fpRate:        fpRate,
	}
}

func (bf *bloomFilter) add(key string) {
	bf.mu.Lock()
	bf.filter.AddString(key)
	bf.mu.Unlock()
}

func (bf *bloomFilter) test(key string) bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return bf.filter.TestString(key)
}

// rebuild replaces the filter with one holding exactly keys.
func (bf *bloomFilter) rebuild(keys []string) {
	fresh := bloom.NewWithEstimates(bf.expectedItems, bf.fpRate)
	for _, key := range keys {
		fresh.AddString(key)
	}
	bf.mu.Lock()
	bf.filter = fresh
	bf.mu.Unlock()
}
