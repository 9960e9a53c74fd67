package dht

import (
	"fmt"
	"github.com/gostonefire/diskstore/hashfunc"
	"github.com/gostonefire/diskstore/internal/cache"
	"github.com/gostonefire/diskstore/internal/conf"
	"github.com/gostonefire/diskstore/internal/hash"
	"go.uber.org/zap"
)

// Options - Configuration given to Open. Zero values select the defaults.
//   - KeyLength is the fixed length of keys, must be positive
//   - ValueLength is the fixed length of values, zero turns the table into a plain set
//   - Router decides bucket ids and key equality, nil selects the MD5 router
//   - BucketIDWidth is the number of hexadecimal characters in a bucket id, giving 16^BucketIDWidth buckets,
//     zero selects 3 (4096 buckets)
//   - Cache is an optional shared cache of bucket images, see NewCache
//   - KeepFilesOpen keeps bucket files open between operations instead of closing them after each call
//   - Logger receives structured log events, nil disables logging
type Options struct {
	KeyLength     int64
	ValueLength   int64
	Router        hashfunc.Router
	BucketIDWidth int
	Cache         *Cache
	KeepFilesOpen bool
	Logger        *zap.Logger
}

// Cache - A bounded least recently used cache of bucket file images that may be shared between tables.
// Any write to a bucket refreshes its cached image before the bucket lock is released.
type Cache struct {
	buffers *cache.BufferCache
}

// NewCache - Returns a pointer to a new Cache
//   - maxBuckets is the maximum number of bucket images held
//   - maxSizeBytes is the maximum total size of all images
func NewCache(maxBuckets int, maxSizeBytes int64) (*Cache, error) {
	buffers, err := cache.NewBufferCache(maxBuckets, maxSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("unable to create bucket cache: %w", err)
	}

	return &Cache{buffers: buffers}, nil
}

// Len - Returns the number of cached bucket images
func (C *Cache) Len() int {
	return C.buffers.Len()
}

// SizeBytes - Returns the total size of all cached bucket images
func (C *Cache) SizeBytes() int64 {
	return C.buffers.SizeBytes()
}

// NewMD5Router - Returns the default router, MD5 digest prefixes and exact key equality
func NewMD5Router() hashfunc.Router {
	return hash.NewMD5Router()
}

// NewXXHashRouter - Returns a router using xxhash64 prefixes and exact key equality
func NewXXHashRouter() hashfunc.Router {
	return hash.NewXXHashRouter()
}

// withDefaults - Returns a copy of the options with zero values replaced by defaults and validates the result
func (O Options) withDefaults() (opts Options, err error) {
	opts = O

	if opts.KeyLength <= 0 {
		err = fmt.Errorf("%w: key length must be a positive value higher than 0 (zero)", ErrInvalidOptions)
		return
	}
	if opts.ValueLength < 0 {
		err = fmt.Errorf("%w: value length can not be negative", ErrInvalidOptions)
		return
	}
	if opts.BucketIDWidth == 0 {
		opts.BucketIDWidth = conf.DefaultBucketIDWidth
	}
	err = checkWidth(opts.BucketIDWidth)
	if err != nil {
		return
	}
	if opts.Router == nil {
		opts.Router = hash.NewMD5Router()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return
}

// checkWidth - Validates a bucket id width
func checkWidth(width int) error {
	if width < conf.MinBucketIDWidth || width > conf.MaxBucketIDWidth {
		return fmt.Errorf("%w: %d, must be between %d and %d", ErrInvalidWidth, width, conf.MinBucketIDWidth, conf.MaxBucketIDWidth)
	}

	return nil
}
