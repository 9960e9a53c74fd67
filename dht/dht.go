// Package dht implements a bucketed disk hash table for fixed length keys with optional fixed length values.
//
// Keys are routed to one of 16^width bucket files by a prefix of a digest over the key. Each bucket file is a
// flat sequence of records that is scanned linearly, so the bucket id width bounds the scan cost for a given key
// population. Bucket files are created lazily under path/name and opened only for the duration of a call unless
// Options.KeepFilesOpen is set.
//
// A table's key and value lengths are fixed for its lifetime and are not recorded on disk. Reopening the same
// path and name with a different shape is a caller error that is not detected.
package dht

import (
	"errors"
	"fmt"
	"github.com/gostonefire/diskstore/internal/bucket"
	"github.com/gostonefire/diskstore/internal/cache"
	"github.com/gostonefire/diskstore/internal/model"
	"github.com/gostonefire/diskstore/internal/storage"
	"go.uber.org/zap"
	"os"
	"sync"
	"sync/atomic"
)

// Table - The disk hash table. It is safe for concurrent use; calls touching different buckets run in parallel
// while calls touching the same bucket are serialized.
type Table struct {
	lock        sync.Mutex
	path        string
	name        string
	opts        Options
	buckets     map[string]*bucket.BucketFile
	closed      bool
	recordCount atomic.Int64
	metrics     tableMetrics
	logger      *zap.Logger
}

// Open - Opens the table called name under path, creating its directory if needed. Existing bucket files are
// counted so that Size reflects records written by earlier processes.
//   - path is the directory under which the table directory is created
//   - name is the base name of the table, used for its directory and bucket file names
//   - opts holds the record shape and strategies, see Options
//
// It returns:
//   - table is a pointer to the opened Table
//   - err is a standard error, no table is returned if it is set
func Open(path, name string, opts Options) (table *Table, err error) {
	if name == "" {
		err = fmt.Errorf("%w: name can not be empty, it will be used to name physical files", ErrInvalidOptions)
		return
	}

	opts, err = opts.withDefaults()
	if err != nil {
		return
	}

	dir := storage.GetTableDir(path, name)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		err = fmt.Errorf("unable to create table directory %s: %w", dir, err)
		return
	}

	counts, err := scanTableDir(path, name, opts.BucketIDWidth, opts.KeyLength+opts.ValueLength)
	if err != nil {
		return
	}

	t := &Table{
		path:    path,
		name:    name,
		opts:    opts,
		buckets: make(map[string]*bucket.BucketFile),
		metrics: newTableMetrics(name),
		logger:  opts.Logger.With(zap.String("table", name)),
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	t.recordCount.Store(total)

	t.logger.Info("opened hash table",
		zap.String("dir", dir),
		zap.Int64("keyLength", opts.KeyLength),
		zap.Int64("valueLength", opts.ValueLength),
		zap.Int("bucketIdWidth", opts.BucketIDWidth),
		zap.Int("bucketFiles", len(counts)),
		zap.Int64("records", total))

	table = t

	return
}

// Close - Closes every open bucket file. Further calls on the table return ErrClosed.
func (T *Table) Close() (err error) {
	T.lock.Lock()
	defer T.lock.Unlock()

	if T.closed {
		return
	}
	T.closed = true

	for _, bf := range T.buckets {
		err = errors.Join(err, bf.Close())
	}
	T.buckets = nil

	return
}

// Size - Returns the total number of physical records in the table
func (T *Table) Size() int64 {
	return T.recordCount.Load()
}

// KeyLength - Returns the key length the table was opened with
func (T *Table) KeyLength() int64 {
	return T.opts.KeyLength
}

// ValueLength - Returns the value length the table was opened with
func (T *Table) ValueLength() int64 {
	return T.opts.ValueLength
}

// BucketIDWidth - Returns the bucket id width the table was opened with
func (T *Table) BucketIDWidth() int {
	return T.opts.BucketIDWidth
}

// BucketID - Returns the id of the bucket that key is routed to
func (T *Table) BucketID(key []byte) (id string, err error) {
	err = T.checkKey(key)
	if err != nil {
		return
	}

	return T.route(key)
}

// Search - Looks up key.
//   - key is the key to look for, it has to be of the table's key length
//   - val receives the stored value if not nil, it has to be of the table's value length
//
// It returns:
//   - found is true if key is present
//   - err is a standard error if something went wrong, absence is not an error
func (T *Table) Search(key, val []byte) (found bool, err error) {
	err = T.checkKey(key)
	if err != nil {
		return
	}
	if val != nil {
		err = T.checkValue(val)
		if err != nil {
			return
		}
	}

	bf, err := T.bucketFor(key)
	if err != nil {
		return
	}

	found, err = bf.Search(key, val)
	if err != nil {
		return
	}

	if found {
		T.metrics.searchFound.Inc()
	} else {
		T.metrics.searchNotFound.Inc()
	}

	return
}

// Insert - Adds the record unless key is already present (set semantics).
//
// It returns:
//   - inserted is false if key already existed, the stored value is then left untouched
//   - err is a standard error if something went wrong
func (T *Table) Insert(key, val []byte) (inserted bool, err error) {
	err = T.checkRecord(key, val)
	if err != nil {
		return
	}

	bf, err := T.bucketFor(key)
	if err != nil {
		return
	}

	inserted, err = bf.Insert(key, val)
	if err != nil {
		return
	}

	err = T.keepOpen(bf)
	if err != nil {
		return
	}

	if inserted {
		T.recordCount.Add(1)
		T.metrics.insertInserted.Inc()
	} else {
		T.metrics.insertDuplicate.Inc()
	}

	return
}

// Append - Adds the record without checking whether key is already present. Use it only when the caller
// guarantees uniqueness and wants to skip the search.
func (T *Table) Append(key, val []byte) (err error) {
	err = T.checkRecord(key, val)
	if err != nil {
		return
	}

	bf, err := T.bucketFor(key)
	if err != nil {
		return
	}

	err = bf.Append(key, val)
	if err != nil {
		return
	}

	err = T.keepOpen(bf)
	if err != nil {
		return
	}

	T.recordCount.Add(1)
	T.metrics.appendAppended.Inc()

	return
}

// Update - Replaces the value stored for key.
//
// It returns:
//   - found is false if key is absent, nothing is written in that case
//   - err is a standard error if something went wrong
func (T *Table) Update(key, val []byte) (found bool, err error) {
	err = T.checkRecord(key, val)
	if err != nil {
		return
	}

	bf, err := T.bucketFor(key)
	if err != nil {
		return
	}

	found, err = bf.Update(key, val)
	if err != nil {
		return
	}

	if found {
		T.metrics.updateUpdated.Inc()
	} else {
		T.metrics.updateNotFound.Inc()
	}

	return
}

// bucketFor - Routes key to its bucket file handle, creating the handle if needed
func (T *Table) bucketFor(key []byte) (bf *bucket.BucketFile, err error) {
	id, err := T.route(key)
	if err != nil {
		return
	}

	return T.getBucket(id, false)
}

// keepOpen - Leaves the bucket file open after a write created it, when the table keeps its files open
func (T *Table) keepOpen(bf *bucket.BucketFile) error {
	if !T.opts.KeepFilesOpen || bf.IsOpen() {
		return nil
	}

	return bf.Open()
}

// route - Returns the bucket id for key and makes sure the router produced a usable id
func (T *Table) route(key []byte) (id string, err error) {
	id = T.opts.Router.HashPrefix(key, T.opts.BucketIDWidth)
	if !isBucketID(id, T.opts.BucketIDWidth) {
		err = fmt.Errorf("%w: router returned bucket id %q for width %d", ErrInvalidOptions, id, T.opts.BucketIDWidth)
	}

	return
}

// getBucket - Returns the cached handle for bucket id, creating it on first use.
// With mustExist set and no bucket file on disk, no handle is created and bf is nil.
func (T *Table) getBucket(id string, mustExist bool) (bf *bucket.BucketFile, err error) {
	T.lock.Lock()
	defer T.lock.Unlock()

	if T.closed {
		err = ErrClosed
		return
	}

	if !isBucketID(id, T.opts.BucketIDWidth) {
		err = fmt.Errorf("%w: %q for width %d", ErrInvalidBucketID, id, T.opts.BucketIDWidth)
		return
	}

	fileName := storage.GetBucketFileName(T.path, T.name, id)
	if mustExist {
		var exists bool
		exists, err = storage.FileExists(fileName)
		if err != nil || !exists {
			return
		}
	}

	bf, ok := T.buckets[id]
	if ok {
		return
	}

	var buffers *cache.BufferCache
	if T.opts.Cache != nil {
		buffers = T.opts.Cache.buffers
	}

	params := model.BucketParams{
		ID:          id,
		FileName:    fileName,
		KeyLength:   T.opts.KeyLength,
		ValueLength: T.opts.ValueLength,
	}

	bf, err = bucket.NewBucketFile(params, T.opts.Router, buffers, T.logger)
	if err != nil {
		return
	}

	// A bucket file that is not on disk yet is created, and kept open, by the first write
	if T.opts.KeepFilesOpen {
		var exists bool
		exists, err = storage.FileExists(fileName)
		if err != nil {
			bf = nil
			return
		}
		if exists {
			err = bf.Open()
			if err != nil {
				bf = nil
				return
			}
		}
	}

	T.buckets[id] = bf
	T.metrics.bucketsLoaded.Inc()

	return
}

// checkKey - Validates the key length
func (T *Table) checkKey(key []byte) error {
	if int64(len(key)) != T.opts.KeyLength {
		return fmt.Errorf("%w: key has %d bytes, should be %d", ErrWrongLength, len(key), T.opts.KeyLength)
	}

	return nil
}

// checkValue - Validates the value length, a nil value has length zero
func (T *Table) checkValue(val []byte) error {
	if int64(len(val)) != T.opts.ValueLength {
		return fmt.Errorf("%w: value has %d bytes, should be %d", ErrWrongLength, len(val), T.opts.ValueLength)
	}

	return nil
}

// checkRecord - Validates both key and value lengths
func (T *Table) checkRecord(key, val []byte) error {
	if err := T.checkKey(key); err != nil {
		return err
	}

	return T.checkValue(val)
}
