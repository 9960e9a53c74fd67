package model

import (
	"github.com/gostonefire/diskstore/internal/conf"
)

// Cursor - Names the next record to write (push) or read (pop) in a queue.
// A cursor with BlockID equal to conf.NilBlock and Slot equal to records per block has no current block.
type Cursor struct {
	BlockID uint64
	Slot    uint64
}

// IsNil - Returns true if the cursor currently has no block
func (C Cursor) IsNil() bool {
	return C.BlockID == conf.NilBlock
}

// QueueHeader - Represents the fixed part of a queue index file
type QueueHeader struct {
	BlockSize    uint64
	RecLen       uint64
	MaxBlockSize uint64
	RecsPerBlock uint64
	RecCnt       uint64
	BlockCnt     uint64
	AllocCnt     uint64
	FreeCnt      uint64
	Push         Cursor
	Pop          Cursor
}

// NewQueueHeader - Returns the header of an empty queue.
// The effective block size is the largest multiple of recLen not exceeding maxBlockSize.
func NewQueueHeader(recLen, maxBlockSize uint64) QueueHeader {
	recsPerBlock := maxBlockSize / recLen
	return QueueHeader{
		BlockSize:    recsPerBlock * recLen,
		RecLen:       recLen,
		MaxBlockSize: maxBlockSize,
		RecsPerBlock: recsPerBlock,
		Push:         Cursor{BlockID: conf.NilBlock, Slot: recsPerBlock},
		Pop:          Cursor{BlockID: conf.NilBlock, Slot: recsPerBlock},
	}
}

// NilCursor - Returns the cursor meaning "no current block"
func (Q QueueHeader) NilCursor() Cursor {
	return Cursor{BlockID: conf.NilBlock, Slot: Q.RecsPerBlock}
}

// RecordOffset - Returns the data file offset of the record at cursor c
func (Q QueueHeader) RecordOffset(c Cursor) int64 {
	return int64(c.BlockID*Q.BlockSize + c.Slot*Q.RecLen)
}

// BlockOffset - Returns the data file offset of block id
func (Q QueueHeader) BlockOffset(id uint64) int64 {
	return int64(id * Q.BlockSize)
}

// BucketParams - Represents the fixed shape of records in one bucket file
//   - ID is the fixed width hexadecimal bucket id
//   - FileName is the full path of the bucket file
//   - KeyLength is the length of the key part in a record
//   - ValueLength is the length of the value part in a record, may be zero
type BucketParams struct {
	ID          string
	FileName    string
	KeyLength   int64
	ValueLength int64
}

// RecordLength - Returns the total length of one record
func (B BucketParams) RecordLength() int64 {
	return B.KeyLength + B.ValueLength
}
