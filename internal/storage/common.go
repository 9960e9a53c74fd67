package storage

import (
	"errors"
	"fmt"
	"github.com/gostonefire/diskstore/internal/conf"
	"github.com/gostonefire/diskstore/internal/utils"
	"io"
	"os"
	"path/filepath"
)

// GetTableDir - Returns the directory holding all bucket files of the table called name under path
func GetTableDir(path, name string) (dir string) {
	return filepath.Join(path, name)
}

// GetBucketFileName - Return the bucket file name given table path, name and bucket id.
// The rule is path/name/name-<id>.bin and must stay reproducible for maintenance tooling.
func GetBucketFileName(path, name, bucketID string) (fileName string) {
	return filepath.Join(GetTableDir(path, name), fmt.Sprintf("%s-%s%s", name, bucketID, conf.BucketFileSuffix))
}

// GetBucketIDs - Returns every bucket id for the given width in ascending order, 16^width ids in total
func GetBucketIDs(width int) (ids []string) {
	n := BucketCount(width)
	ids = make([]string, n)
	for i := int64(0); i < n; i++ {
		ids[i] = utils.HexID(i, width)
	}

	return
}

// BucketCount - Returns the exact number of buckets addressable with the given bucket id width
func BucketCount(width int) int64 {
	return int64(1) << (4 * width)
}

// GetQueueFileNames - Returns the index and data file names of the queue called name under path.
// The queue lives in its own directory, path/name/name.idx and path/name/name.dat.
func GetQueueFileNames(path, name string) (indexFileName, dataFileName string) {
	base := filepath.Join(path, name, name)
	indexFileName = base + conf.QueueIndexSuffix
	dataFileName = base + conf.QueueDataSuffix

	return
}

// FileExists - Returns true if fileName exists and is a regular file
func FileExists(fileName string) (exists bool, err error) {
	stat, err := os.Stat(fileName)
	if err == nil {
		exists = !stat.IsDir()
		return
	}
	if os.IsNotExist(err) {
		err = nil
	}

	return
}

// OpenOrCreate - Opens fileName for reading and writing, creating it and its directory if needed
func OpenOrCreate(fileName string) (file *os.File, err error) {
	err = os.MkdirAll(filepath.Dir(fileName), 0755)
	if err != nil {
		err = fmt.Errorf("unable to create directory for %s: %w", fileName, err)
		return
	}

	file, err = os.OpenFile(fileName, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		err = fmt.Errorf("unable to open file %s: %w", fileName, err)
	}

	return
}

// ReadFullAt - Fills buf from file at offset, treating an EOF after a complete read as success
func ReadFullAt(file io.ReaderAt, buf []byte, offset int64) (err error) {
	n, err := file.ReadAt(buf, offset)
	if n == len(buf) && errors.Is(err, io.EOF) {
		err = nil
	}
	if err == nil && n < len(buf) {
		err = io.ErrUnexpectedEOF
	}

	return
}
