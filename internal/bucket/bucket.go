// Package bucket owns the physical file of one hash table bucket and all safe access to it.
//
// A bucket file is a header-less flat sequence of fixed length records, key bytes followed by value bytes.
// Every exported operation holds the bucket lock for the whole call, and is charged at most one open/close
// cycle of the file through a Guard.
package bucket

import (
	"errors"
	"fmt"
	"github.com/gostonefire/diskstore/hashfunc"
	"github.com/gostonefire/diskstore/internal/cache"
	"github.com/gostonefire/diskstore/internal/conf"
	"github.com/gostonefire/diskstore/internal/model"
	"github.com/gostonefire/diskstore/internal/storage"
	"go.uber.org/zap"
	"os"
	"sync"
)

// notFound - Record number returned by internal searches when no record matches
const notFound int64 = -1

// BucketFile - Represents one bucket file of a hash table
type BucketFile struct {
	lock        sync.Mutex
	params      model.BucketParams
	router      hashfunc.Router
	cache       *cache.BufferCache
	logger      *zap.Logger
	file        *os.File
	recordCount int64
}

// Guard - Token returned by Acquire. It remembers whether the bucket file was already open so that Release
// restores exactly that state. Guards nest, only the outermost one opens and closes the file.
type Guard struct {
	bucket  *BucketFile
	wasOpen bool
}

// NewBucketFile - Returns a pointer to a new BucketFile. The file itself is not opened or created until first
// use, but an existing file is inspected to learn its record count.
//   - params is the bucket id, file name and record shape
//   - router provides the key equality used while scanning
//   - bufferCache is an optional cache of bucket images, nil disables caching
//   - logger receives debug events, nil means no logging
func NewBucketFile(
	params model.BucketParams,
	router hashfunc.Router,
	bufferCache *cache.BufferCache,
	logger *zap.Logger,
) (
	bucketFile *BucketFile,
	err error,
) {
	if logger == nil {
		logger = zap.NewNop()
	}

	bucketFile = &BucketFile{
		params: params,
		router: router,
		cache:  bufferCache,
		logger: logger.With(zap.String("bucket", params.ID)),
	}

	stat, err := os.Stat(params.FileName)
	if err != nil {
		if os.IsNotExist(err) {
			err = nil
			return
		}
		bucketFile = nil
		err = fmt.Errorf("unable to stat bucket file %s: %w", params.FileName, err)
		return
	}

	recordLength := params.RecordLength()
	bucketFile.recordCount = stat.Size() / recordLength
	if stat.Size()%recordLength != 0 {
		bucketFile.logger.Warn("bucket file ends with a partial record",
			zap.String("file", params.FileName),
			zap.Int64("size", stat.Size()),
			zap.Int64("recordLength", recordLength))
	}

	return
}

// ID - Returns the bucket id
func (B *BucketFile) ID() string {
	return B.params.ID
}

// FileName - Returns the full path of the bucket file
func (B *BucketFile) FileName() string {
	return B.params.FileName
}

// Size - Returns the number of physical records in the bucket file
func (B *BucketFile) Size() int64 {
	B.lock.Lock()
	defer B.lock.Unlock()

	return B.recordCount
}

// IsOpen - Returns true if the bucket file is currently open
func (B *BucketFile) IsOpen() bool {
	B.lock.Lock()
	defer B.lock.Unlock()

	return B.file != nil
}

// Open - Opens the bucket file, creating it if absent. Opening an open bucket file is a no-op.
func (B *BucketFile) Open() (err error) {
	B.lock.Lock()
	defer B.lock.Unlock()

	return B.openLocked()
}

// Close - Closes the bucket file. Closing a closed bucket file is a no-op.
func (B *BucketFile) Close() (err error) {
	B.lock.Lock()
	defer B.lock.Unlock()

	return B.closeLocked()
}

// Acquire - Makes sure the bucket file is open and returns a Guard recording whether it already was.
// Call Release on the guard on every exit path, typically with defer.
func (B *BucketFile) Acquire() (guard Guard, err error) {
	B.lock.Lock()
	defer B.lock.Unlock()

	return B.acquireLocked()
}

// Release - Closes the bucket file if, and only if, the matching Acquire opened it
func (G Guard) Release() (err error) {
	G.bucket.lock.Lock()
	defer G.bucket.lock.Unlock()

	return G.releaseLocked()
}

// Search - Scans the bucket for key in physical order.
//   - key is the key to look for
//   - val receives the value of the first matching record if not nil
//
// It returns:
//   - found is true if a record with a matching key exists
//   - err is a standard error if something went wrong
func (B *BucketFile) Search(key, val []byte) (found bool, err error) {
	B.lock.Lock()
	defer B.lock.Unlock()

	if B.recordCount == 0 {
		return
	}

	guard, err := B.acquireLocked()
	if err != nil {
		return
	}
	defer func() { err = errors.Join(err, guard.releaseLocked()) }()

	recNo, err := B.searchLocked(key, val)
	found = recNo != notFound

	return
}

// Append - Writes a new record at the end of the bucket file without checking for duplicates
func (B *BucketFile) Append(key, val []byte) (err error) {
	B.lock.Lock()
	defer B.lock.Unlock()

	guard, err := B.acquireLocked()
	if err != nil {
		return
	}
	defer func() { err = errors.Join(err, guard.releaseLocked()) }()

	return B.appendLocked(key, val)
}

// Insert - Appends the record only if no record with the same key exists.
// Search and append happen under one lock and one open/close cycle.
//
// It returns:
//   - inserted is false if the key was already present, in which case nothing is written
//   - err is a standard error if something went wrong
func (B *BucketFile) Insert(key, val []byte) (inserted bool, err error) {
	B.lock.Lock()
	defer B.lock.Unlock()

	guard, err := B.acquireLocked()
	if err != nil {
		return
	}
	defer func() { err = errors.Join(err, guard.releaseLocked()) }()

	recNo, err := B.searchLocked(key, nil)
	if err != nil || recNo != notFound {
		return
	}

	err = B.appendLocked(key, val)
	inserted = err == nil

	return
}

// Update - Overwrites the value bytes of the first record matching key, in place.
//
// It returns:
//   - found is false if no record matches key, in which case nothing is written
//   - err is a standard error if something went wrong
func (B *BucketFile) Update(key, val []byte) (found bool, err error) {
	B.lock.Lock()
	defer B.lock.Unlock()

	if B.recordCount == 0 {
		return
	}

	guard, err := B.acquireLocked()
	if err != nil {
		return
	}
	defer func() { err = errors.Join(err, guard.releaseLocked()) }()

	recNo, err := B.searchLocked(key, nil)
	if err != nil || recNo == notFound {
		return
	}
	found = true

	if B.params.ValueLength == 0 {
		return
	}

	value := make([]byte, B.params.ValueLength)
	copy(value, val)
	valueOffset := recNo*B.params.RecordLength() + B.params.KeyLength

	_, err = B.file.WriteAt(value, valueOffset)
	if err != nil {
		// The file may now hold a partial value
		if B.cache != nil {
			B.cache.Invalidate(B.params.FileName)
		}
		err = fmt.Errorf("unable to update record %d in %s: %w", recNo, B.params.FileName, err)
		return
	}

	if B.cache != nil {
		B.cache.Refresh(B.params.FileName, func(image []byte) []byte {
			if int64(len(image)) >= valueOffset+B.params.ValueLength {
				copy(image[valueOffset:], value)
			}
			return image
		})
	}

	return
}

// Read - Reads the record with number recNo directly, bypassing search.
//   - key receives the key part of the record if not nil
//   - val receives the value part of the record if not nil
//
// It returns:
//   - ok is false if recNo is outside the bucket file
//   - err is a standard error if something went wrong
func (B *BucketFile) Read(recNo int64, key, val []byte) (ok bool, err error) {
	B.lock.Lock()
	defer B.lock.Unlock()

	if recNo < 0 || recNo >= B.recordCount {
		return
	}

	guard, err := B.acquireLocked()
	if err != nil {
		return
	}
	defer func() { err = errors.Join(err, guard.releaseLocked()) }()

	buf := make([]byte, B.params.RecordLength())
	err = storage.ReadFullAt(B.file, buf, recNo*B.params.RecordLength())
	if err != nil {
		err = fmt.Errorf("unable to read record %d from %s: %w", recNo, B.params.FileName, err)
		return
	}

	copy(key, buf[:B.params.KeyLength])
	copy(val, buf[B.params.KeyLength:])
	ok = true

	return
}

// Records - Calls fn for every physical record in the bucket file in order, duplicates included, until fn
// returns false. The key and value slices are only valid during the call.
func (B *BucketFile) Records(fn func(recNo int64, key, val []byte) bool) (err error) {
	B.lock.Lock()
	defer B.lock.Unlock()

	if B.recordCount == 0 {
		return
	}

	guard, err := B.acquireLocked()
	if err != nil {
		return
	}
	defer func() { err = errors.Join(err, guard.releaseLocked()) }()

	err = B.scanLocked(func(recNo int64, record []byte) bool {
		return fn(recNo, record[:B.params.KeyLength], record[B.params.KeyLength:])
	})

	return
}

// openLocked - Opens or creates the file, the caller holds the lock
func (B *BucketFile) openLocked() (err error) {
	if B.file != nil {
		return
	}

	exists, err := storage.FileExists(B.params.FileName)
	if err != nil {
		return
	}

	B.file, err = storage.OpenOrCreate(B.params.FileName)
	if err != nil {
		return
	}

	if !exists {
		B.logger.Debug("created bucket file", zap.String("file", B.params.FileName))
	}

	return
}

// closeLocked - Closes the file, the caller holds the lock
func (B *BucketFile) closeLocked() (err error) {
	if B.file == nil {
		return
	}

	err = B.file.Close()
	B.file = nil
	if err != nil {
		err = fmt.Errorf("unable to close bucket file %s: %w", B.params.FileName, err)
	}

	return
}

// acquireLocked - Opens the file if needed and records the prior state, the caller holds the lock
func (B *BucketFile) acquireLocked() (guard Guard, err error) {
	guard = Guard{bucket: B, wasOpen: B.file != nil}
	err = B.openLocked()

	return
}

// releaseLocked - Restores the state recorded by acquireLocked, the caller holds the lock
func (G Guard) releaseLocked() (err error) {
	if G.wasOpen {
		return
	}

	return G.bucket.closeLocked()
}

// searchLocked - Returns the record number of the first record matching key or notFound.
// The value of a match is copied to val if val is not nil.
func (B *BucketFile) searchLocked(key, val []byte) (recNo int64, err error) {
	recNo = notFound

	err = B.scanLocked(func(n int64, record []byte) bool {
		if B.router.Equals(key, record[:B.params.KeyLength]) {
			recNo = n
			if val != nil {
				copy(val, record[B.params.KeyLength:])
			}
			return false
		}
		return true
	})

	return
}

// scanLocked - Feeds every record to fn until it returns false. A cached image is used when available, and
// populated when a cache is attached but holds no image for this bucket. Without a cache the file is read in
// chunks of conf.ScanChunkRecords records.
func (B *BucketFile) scanLocked(fn func(recNo int64, record []byte) bool) (err error) {
	if B.recordCount == 0 {
		return
	}

	recordLength := B.params.RecordLength()

	if B.cache != nil {
		image, ok := B.cache.Get(B.params.FileName)
		if !ok || int64(len(image)) != B.recordCount*recordLength {
			image, err = B.readImageLocked()
			if err != nil {
				return
			}
			B.cache.Put(B.params.FileName, image)
		}

		for n := int64(0); n < B.recordCount; n++ {
			if !fn(n, image[n*recordLength:(n+1)*recordLength]) {
				return
			}
		}

		return
	}

	chunk := make([]byte, min(B.recordCount, conf.ScanChunkRecords)*recordLength)
	for first := int64(0); first < B.recordCount; first += conf.ScanChunkRecords {
		count := min(B.recordCount-first, conf.ScanChunkRecords)
		buf := chunk[:count*recordLength]
		err = storage.ReadFullAt(B.file, buf, first*recordLength)
		if err != nil {
			err = fmt.Errorf("unable to read records from %s: %w", B.params.FileName, err)
			return
		}

		for i := int64(0); i < count; i++ {
			if !fn(first+i, buf[i*recordLength:(i+1)*recordLength]) {
				return
			}
		}
	}

	return
}

// appendLocked - Writes a record at the end of the file and keeps any cached image coherent
func (B *BucketFile) appendLocked(key, val []byte) (err error) {
	recordLength := B.params.RecordLength()
	record := make([]byte, recordLength)
	copy(record, key)
	copy(record[B.params.KeyLength:], val)

	_, err = B.file.WriteAt(record, B.recordCount*recordLength)
	if err != nil {
		if B.cache != nil {
			B.cache.Invalidate(B.params.FileName)
		}
		err = fmt.Errorf("unable to append record to %s: %w", B.params.FileName, err)
		return
	}

	B.recordCount++

	if B.cache != nil {
		B.cache.Refresh(B.params.FileName, func(image []byte) []byte {
			return append(image, record...)
		})
	}

	return
}

// readImageLocked - Reads all records of the file into one slice
func (B *BucketFile) readImageLocked() (image []byte, err error) {
	image = make([]byte, B.recordCount*B.params.RecordLength())
	err = storage.ReadFullAt(B.file, image, 0)
	if err != nil {
		image = nil
		err = fmt.Errorf("unable to read bucket image from %s: %w", B.params.FileName, err)
	}

	return
}
