package dht

import (
	"fmt"
	"github.com/gostonefire/diskstore/internal/utils"
)

// TypedTable - A Table keyed by values of a fixed size type K holding values of a fixed size type V. Both are
// stored little endian as laid out by encoding/binary. Use struct{} as V for a plain set of keys.
type TypedTable[K, V any] struct {
	table     *Table
	keySize   int
	valueSize int
}

// OpenTyped - Opens a table whose key and value lengths are the encoded sizes of K and V, see Open.
// KeyLength and ValueLength in opts are ignored.
func OpenTyped[K, V any](path, name string, opts Options) (typed *TypedTable[K, V], err error) {
	var key K
	var val V

	keySize, err := utils.FixedSize(key)
	if err != nil {
		err = fmt.Errorf("%w: key %w", ErrInvalidOptions, err)
		return
	}
	valueSize, err := utils.FixedSize(val)
	if err != nil {
		err = fmt.Errorf("%w: value %w", ErrInvalidOptions, err)
		return
	}

	opts.KeyLength = int64(keySize)
	opts.ValueLength = int64(valueSize)
	table, err := Open(path, name, opts)
	if err != nil {
		return
	}

	typed = &TypedTable[K, V]{table: table, keySize: keySize, valueSize: valueSize}

	return
}

// Search - Looks up key, returning its value if found
func (T *TypedTable[K, V]) Search(key K) (val V, found bool, err error) {
	k, err := utils.EncodeFixed(key, T.keySize)
	if err != nil {
		return
	}

	v := make([]byte, T.valueSize)
	found, err = T.table.Search(k, v)
	if err != nil || !found {
		return
	}

	err = utils.DecodeFixed(v, &val)

	return
}

// Insert - Adds the pair unless key is already present, see Table.Insert
func (T *TypedTable[K, V]) Insert(key K, val V) (inserted bool, err error) {
	k, v, err := T.encode(key, val)
	if err != nil {
		return
	}

	return T.table.Insert(k, v)
}

// Append - Adds the pair without checking for duplicates, see Table.Append
func (T *TypedTable[K, V]) Append(key K, val V) (err error) {
	k, v, err := T.encode(key, val)
	if err != nil {
		return
	}

	return T.table.Append(k, v)
}

// Update - Replaces the value stored for key, see Table.Update
func (T *TypedTable[K, V]) Update(key K, val V) (found bool, err error) {
	k, v, err := T.encode(key, val)
	if err != nil {
		return
	}

	return T.table.Update(k, v)
}

// Size - Returns the total number of physical records in the table
func (T *TypedTable[K, V]) Size() int64 {
	return T.table.Size()
}

// Table - Returns the underlying byte record table
func (T *TypedTable[K, V]) Table() *Table {
	return T.table
}

// Close - Closes the underlying table
func (T *TypedTable[K, V]) Close() error {
	return T.table.Close()
}

// encode - Encodes a key and value pair
func (T *TypedTable[K, V]) encode(key K, val V) (k, v []byte, err error) {
	k, err = utils.EncodeFixed(key, T.keySize)
	if err != nil {
		return
	}
	v, err = utils.EncodeFixed(val, T.valueSize)

	return
}
