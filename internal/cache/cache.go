// Package cache holds byte images of bucket files so repeated scans of a hot bucket avoid re-reading storage.
//
// The cache is bounded both by number of images and by total bytes. The least recently used image is evicted
// first. Writers must keep images coherent with their files through Refresh or Invalidate while holding the
// bucket's own lock.
package cache

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/client_golang/prometheus"
	"sync"
)

var (
	cachePrometheusMetrics sync.Once

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "diskstore",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Number of bucket image lookups, by outcome",
		},
		[]string{"outcome"},
	)
	cacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "diskstore",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Number of bucket images dropped from the cache, either evicted or invalidated",
		},
	)
)

// BufferCache - A bounded least recently used cache of bucket file images keyed by bucket file name.
// It is safe for concurrent use and may be shared by several tables.
type BufferCache struct {
	lock         sync.Mutex
	images       *simplelru.LRU[string, []byte]
	maxSizeBytes int64
	sizeBytes    int64
	hits         prometheus.Counter
	misses       prometheus.Counter
}

// NewBufferCache - Returns a pointer to a new BufferCache
//   - maxEntries is the maximum number of bucket images held
//   - maxSizeBytes is the maximum total size of all images, an image larger than this is never cached
func NewBufferCache(maxEntries int, maxSizeBytes int64) (*BufferCache, error) {
	cachePrometheusMetrics.Do(func() {
		prometheus.MustRegister(cacheLookups)
		prometheus.MustRegister(cacheEvictions)
	})

	c := &BufferCache{
		maxSizeBytes: maxSizeBytes,
		hits:         cacheLookups.WithLabelValues("Hit"),
		misses:       cacheLookups.WithLabelValues("Miss"),
	}

	images, err := simplelru.NewLRU[string, []byte](maxEntries, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.images = images

	return c, nil
}

// onEvict - Keeps the byte accounting in line with entries leaving the LRU, called with the lock held
func (C *BufferCache) onEvict(_ string, image []byte) {
	C.sizeBytes -= int64(len(image))
	cacheEvictions.Inc()
}

// Get - Returns the image cached for key. The returned slice is shared with the cache and may only be read
// while holding the lock that serializes writers of the underlying bucket file.
func (C *BufferCache) Get(key string) (image []byte, ok bool) {
	C.lock.Lock()
	defer C.lock.Unlock()

	image, ok = C.images.Get(key)
	if ok {
		C.hits.Inc()
	} else {
		C.misses.Inc()
	}

	return
}

// Put - Stores image for key, replacing any earlier image, then evicts until within bounds
func (C *BufferCache) Put(key string, image []byte) {
	if int64(len(image)) > C.maxSizeBytes {
		C.Invalidate(key)
		return
	}

	C.lock.Lock()
	defer C.lock.Unlock()

	C.images.Remove(key)
	C.images.Add(key, image)
	C.sizeBytes += int64(len(image))
	C.shrink()
}

// Refresh - Applies mutate to the image cached for key, if any, and stores the result.
// mutate receives the current image and returns the new one; it may append to or patch the slice.
func (C *BufferCache) Refresh(key string, mutate func(image []byte) []byte) {
	C.lock.Lock()
	defer C.lock.Unlock()

	image, ok := C.images.Peek(key)
	if !ok {
		return
	}

	updated := mutate(image)
	if int64(len(updated)) > C.maxSizeBytes {
		C.images.Remove(key)
		return
	}

	C.sizeBytes += int64(len(updated) - len(image))
	// Add on an existing key replaces the value without firing the eviction callback.
	C.images.Add(key, updated)
	C.shrink()
}

// Invalidate - Drops the image cached for key
func (C *BufferCache) Invalidate(key string) {
	C.lock.Lock()
	defer C.lock.Unlock()

	C.images.Remove(key)
}

// Len - Returns the number of cached images
func (C *BufferCache) Len() int {
	C.lock.Lock()
	defer C.lock.Unlock()

	return C.images.Len()
}

// SizeBytes - Returns the total size of all cached images
func (C *BufferCache) SizeBytes() int64 {
	C.lock.Lock()
	defer C.lock.Unlock()

	return C.sizeBytes
}

// shrink - Evicts least recently used images until the byte bound holds, called with the lock held
func (C *BufferCache) shrink() {
	for C.sizeBytes > C.maxSizeBytes {
		if _, _, ok := C.images.RemoveOldest(); !ok {
			return
		}
	}
}
