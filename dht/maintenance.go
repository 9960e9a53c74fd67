package dht

import (
	"fmt"
	"github.com/gostonefire/diskstore/internal/conf"
	"github.com/gostonefire/diskstore/internal/storage"
	"os"
	"sort"
	"strings"
)

// Stat - Summary of a table's bucket files
//   - Records is the total number of physical records
//   - Buckets is the number of bucket files present on disk
//   - MinBucket and MinRecords identify the smallest present bucket
//   - MaxBucket and MaxRecords identify the largest present bucket
type Stat struct {
	Records    int64
	Buckets    int
	MinBucket  string
	MinRecords int64
	MaxBucket  string
	MaxRecords int64
}

// BucketIDs - Returns every bucket id for width in ascending order, 16^width ids in total
func BucketIDs(width int) (ids []string, err error) {
	err = checkWidth(width)
	if err != nil {
		return
	}

	return storage.GetBucketIDs(width), nil
}

// BucketFilePath - Returns the path of the bucket file with the given id of the table called name under path
func BucketFilePath(path, name, id string) string {
	return storage.GetBucketFileName(path, name, id)
}

// BucketFilePaths - Returns the path of every possible bucket file of a table, present on disk or not,
// in ascending bucket id order
func BucketFilePaths(path, name string, width int) (paths []string, err error) {
	ids, err := BucketIDs(width)
	if err != nil {
		return
	}

	paths = make([]string, len(ids))
	for i, id := range ids {
		paths[i] = storage.GetBucketFileName(path, name, id)
	}

	return
}

// ReadRecord - Reads record recNo of bucket id without searching.
//
// It returns:
//   - ok is false if the bucket file does not exist or has no record recNo
//   - err is a standard error if something went wrong
func (T *Table) ReadRecord(id string, recNo int64, key, val []byte) (ok bool, err error) {
	bf, err := T.getBucket(id, true)
	if err != nil || bf == nil {
		return
	}

	return bf.Read(recNo, key, val)
}

// ScanBucket - Calls fn for every physical record of bucket id, duplicates included, until fn returns false.
// The key and value slices are only valid during the call.
//
// It returns:
//   - exists is false if the bucket file is not on disk, fn is then never called
//   - err is a standard error if something went wrong
func (T *Table) ScanBucket(id string, fn func(recNo int64, key, val []byte) bool) (exists bool, err error) {
	bf, err := T.getBucket(id, true)
	if err != nil || bf == nil {
		return
	}
	exists = true

	err = bf.Records(fn)

	return
}

// BucketSize - Returns the number of physical records in bucket id, zero if the bucket file does not exist
func (T *Table) BucketSize(id string) (size int64, err error) {
	bf, err := T.getBucket(id, true)
	if err != nil || bf == nil {
		return
	}

	return bf.Size(), nil
}

// Stat - Summarizes the bucket files currently on disk
func (T *Table) Stat() (stat Stat, err error) {
	T.lock.Lock()
	closed := T.closed
	T.lock.Unlock()
	if closed {
		err = ErrClosed
		return
	}

	counts, err := scanTableDir(T.path, T.name, T.opts.BucketIDWidth, T.opts.KeyLength+T.opts.ValueLength)
	if err != nil {
		return
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for i, id := range ids {
		n := counts[id]
		stat.Records += n
		if i == 0 || n < stat.MinRecords {
			stat.MinBucket, stat.MinRecords = id, n
		}
		if i == 0 || n > stat.MaxRecords {
			stat.MaxBucket, stat.MaxRecords = id, n
		}
	}
	stat.Buckets = len(ids)

	return
}

// scanTableDir - Returns the record count of every bucket file of the table found on disk, keyed by bucket id.
// Files not following the bucket file naming rule for width are ignored.
func scanTableDir(path, name string, width int, recordLength int64) (counts map[string]int64, err error) {
	dir := storage.GetTableDir(path, name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			err = nil
			counts = map[string]int64{}
			return
		}
		err = fmt.Errorf("unable to read table directory %s: %w", dir, err)
		return
	}

	counts = make(map[string]int64)
	prefix := name + "-"
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		id, ok := strings.CutPrefix(entry.Name(), prefix)
		if !ok {
			continue
		}
		id, ok = strings.CutSuffix(id, conf.BucketFileSuffix)
		if !ok || !isBucketID(id, width) {
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			err = fmt.Errorf("unable to stat bucket file %s: %w", entry.Name(), infoErr)
			return
		}
		counts[id] = info.Size() / recordLength
	}

	return
}

// isBucketID - Returns true if id is exactly width lowercase hexadecimal characters
func isBucketID(id string, width int) bool {
	if len(id) != width {
		return false
	}
	for _, c := range id {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}

	return true
}
