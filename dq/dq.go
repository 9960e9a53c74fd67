// Package dq implements a disk backed FIFO queue of fixed length records that can grow without bound.
//
// A queue lives in its own directory as two files. The data file is a sequence of equally sized blocks, each
// holding a fixed number of records. The index file holds a header with both cursors and the record count,
// followed by the chain of allocated blocks (oldest first) and the chain of free blocks. Blocks emptied by pops
// are moved to the free chain and reused by later pushes; the data file never shrinks.
//
// The index is persisted whenever a push or pop crosses a block boundary, on Flush and on Close. A process that
// stops without closing the queue may lose the cursor movement within the current blocks.
package dq

import (
	"errors"
	"fmt"
	"github.com/gostonefire/diskstore/internal/model"
	"github.com/gostonefire/diskstore/internal/storage"
	"github.com/gostonefire/diskstore/internal/utils"
	"go.uber.org/zap"
	"os"
	"path/filepath"
	"sync"
)

// Cursor - A (block id, slot) position in the data file
type Cursor = model.Cursor

// Stats - Snapshot of the queue geometry and bookkeeping
type Stats struct {
	RecLen       uint64
	RecsPerBlock uint64
	BlockSize    uint64
	Records      uint64
	Blocks       uint64
	Allocated    []uint64
	Free         []uint64
	Push         Cursor
	Pop          Cursor
}

// Queue - The disk queue. It is safe for concurrent use, every push and pop is serialized which makes the
// queue strictly FIFO.
type Queue struct {
	datLock     sync.Mutex
	idxLock     sync.Mutex
	name        string
	header      model.QueueHeader
	alloc       []uint64
	free        []uint64
	dat         *os.File
	idxFileName string
	closed      bool
	metrics     queueMetrics
	logger      *zap.Logger
}

// Open - Opens the queue called name under path, creating its directory and files if needed.
//   - path is the directory under which the queue directory is created
//   - name is the name of the queue, used for its directory and file names
//   - recLen is the fixed length of every record, an existing queue must have been created with the same length
//   - opts holds optional configuration, see Options
//
// It returns:
//   - queue is a pointer to the opened Queue
//   - err is a standard error, no queue is returned if it is set
func Open(path, name string, recLen int, opts Options) (queue *Queue, err error) {
	if name == "" {
		err = fmt.Errorf("%w: name can not be empty, it will be used to name physical files", ErrInvalidOptions)
		return
	}

	opts, err = opts.withDefaults(recLen)
	if err != nil {
		return
	}

	idxFileName, datFileName := storage.GetQueueFileNames(path, name)
	err = os.MkdirAll(filepath.Dir(idxFileName), 0755)
	if err != nil {
		err = fmt.Errorf("unable to create queue directory: %w", err)
		return
	}

	q := &Queue{
		name:        name,
		idxFileName: idxFileName,
		metrics:     newQueueMetrics(name),
		logger:      opts.Logger.With(zap.String("queue", name)),
	}

	exists, err := storage.FileExists(idxFileName)
	if err != nil {
		return
	}

	if exists {
		var index storage.QueueIndex
		index, err = storage.ReadQueueIndex(idxFileName)
		if err != nil {
			return
		}
		if index.Header.RecLen != uint64(recLen) {
			err = fmt.Errorf("%w: queue %s holds records of %d bytes, opened with %d",
				ErrIncompatible, name, index.Header.RecLen, recLen)
			return
		}
		if index.Header.MaxBlockSize != uint64(opts.MaxBlockSize) {
			q.logger.Warn("ignoring max block size, existing queue keeps its own",
				zap.Int64("requested", opts.MaxBlockSize),
				zap.Uint64("existing", index.Header.MaxBlockSize))
		}
		q.header, q.alloc, q.free = index.Header, index.Alloc, index.Free
	} else {
		q.header = model.NewQueueHeader(uint64(recLen), uint64(opts.MaxBlockSize))
		err = q.writeIndex()
		if err != nil {
			return
		}
	}

	q.dat, err = storage.OpenOrCreate(datFileName)
	if err != nil {
		return
	}

	q.logger.Info("opened queue",
		zap.String("dir", filepath.Dir(idxFileName)),
		zap.Uint64("recLen", q.header.RecLen),
		zap.Uint64("recsPerBlock", q.header.RecsPerBlock),
		zap.Uint64("blocks", q.header.BlockCnt),
		zap.Uint64("records", q.header.RecCnt))

	queue = q

	return
}

// Push - Appends a record at the back of the queue.
// When the current push block is full a block is taken from the front of the free chain, or a new zero filled
// block is added at the end of the data file if the free chain is empty.
//   - data is the record, it has to be exactly the record length of the queue
func (Q *Queue) Push(data []byte) (err error) {
	Q.datLock.Lock()
	defer Q.datLock.Unlock()

	if Q.closed {
		err = ErrClosed
		return
	}
	err = Q.checkLength(data)
	if err != nil {
		return
	}

	if Q.header.Push.Slot == Q.header.RecsPerBlock {
		err = Q.acquireBlock()
		if err != nil {
			return
		}
	}

	offset := Q.header.RecordOffset(Q.header.Push)
	_, err = Q.dat.WriteAt(data, offset)
	if err != nil {
		err = fmt.Errorf("unable to write record at offset %d of queue %s: %w", offset, Q.name, err)
		return
	}

	if Q.header.Pop.IsNil() {
		Q.header.Pop = Q.header.Push
	}
	Q.header.Push.Slot++
	Q.header.RecCnt++
	Q.metrics.pushed.Inc()

	return
}

// Pop - Removes the record at the front of the queue.
//   - data receives the record, it has to be exactly the record length of the queue
//
// It returns:
//   - found is false if the queue was empty, data is then left untouched
//   - err is a standard error if something went wrong
func (Q *Queue) Pop(data []byte) (found bool, err error) {
	Q.datLock.Lock()
	defer Q.datLock.Unlock()

	if Q.closed {
		err = ErrClosed
		return
	}
	err = Q.checkLength(data)
	if err != nil {
		return
	}

	if Q.header.RecCnt == 0 {
		Q.metrics.poppedEmpty.Inc()
		return
	}

	if Q.header.Pop.Slot == Q.header.RecsPerBlock {
		err = Q.retireBlock()
		if err != nil {
			return
		}
	}

	if Q.header.Pop.IsNil() {
		err = fmt.Errorf("%w: queue %s counts %d records but has no block to pop from",
			ErrCorruptIndex, Q.name, Q.header.RecCnt)
		return
	}

	offset := Q.header.RecordOffset(Q.header.Pop)
	err = storage.ReadFullAt(Q.dat, data, offset)
	if err != nil {
		err = fmt.Errorf("unable to read record at offset %d of queue %s: %w", offset, Q.name, err)
		return
	}

	Q.header.Pop.Slot++
	Q.header.RecCnt--
	Q.metrics.popped.Inc()
	found = true

	return
}

// Empty - Returns true if the queue holds no records
func (Q *Queue) Empty() bool {
	return Q.Size() == 0
}

// Size - Returns the number of records in the queue
func (Q *Queue) Size() uint64 {
	Q.datLock.Lock()
	defer Q.datLock.Unlock()

	return Q.header.RecCnt
}

// RecLen - Returns the record length of the queue
func (Q *Queue) RecLen() int {
	Q.datLock.Lock()
	defer Q.datLock.Unlock()

	return int(Q.header.RecLen)
}

// Stats - Returns a snapshot of the queue bookkeeping
func (Q *Queue) Stats() Stats {
	Q.datLock.Lock()
	defer Q.datLock.Unlock()

	return Stats{
		RecLen:       Q.header.RecLen,
		RecsPerBlock: Q.header.RecsPerBlock,
		BlockSize:    Q.header.BlockSize,
		Records:      Q.header.RecCnt,
		Blocks:       Q.header.BlockCnt,
		Allocated:    append([]uint64(nil), Q.alloc...),
		Free:         append([]uint64(nil), Q.free...),
		Push:         Q.header.Push,
		Pop:          Q.header.Pop,
	}
}

// Flush - Persists the index now, making the current cursors and record count durable
func (Q *Queue) Flush() (err error) {
	Q.datLock.Lock()
	defer Q.datLock.Unlock()

	if Q.closed {
		err = ErrClosed
		return
	}

	return Q.writeIndex()
}

// Close - Persists the index and closes the data file. Closing a closed queue is a no-op.
func (Q *Queue) Close() (err error) {
	Q.datLock.Lock()
	defer Q.datLock.Unlock()

	if Q.closed {
		return
	}
	Q.closed = true

	err = Q.writeIndex()

	closeErr := Q.dat.Close()
	if closeErr != nil {
		err = errors.Join(err, fmt.Errorf("unable to close data file of queue %s: %w", Q.name, closeErr))
	}

	Q.logger.Info("closed queue", zap.Uint64("records", Q.header.RecCnt), zap.Uint64("blocks", Q.header.BlockCnt))

	return
}

// acquireBlock - Points the push cursor at slot 0 of a block taken from the free chain or appended to the data
// file, and persists the index. The caller holds the data lock.
func (Q *Queue) acquireBlock() (err error) {
	var block uint64
	if len(Q.free) > 0 {
		block = Q.free[0]
		Q.free = Q.free[1:]
		Q.metrics.blocksRecycled.Inc()
		Q.logger.Debug("recycled block", zap.Uint64("block", block))
	} else {
		block = Q.header.BlockCnt
		err = Q.zeroBlock(block)
		if err != nil {
			return
		}
		Q.header.BlockCnt++
		Q.metrics.blocksNew.Inc()
		Q.logger.Debug("allocated block", zap.Uint64("block", block), zap.Uint64("blockSize", Q.header.BlockSize))
	}

	Q.alloc = append(Q.alloc, block)
	Q.header.Push = Cursor{BlockID: block, Slot: 0}

	return Q.writeIndex()
}

// retireBlock - Moves the exhausted pop block from the front of the allocated chain to the back of the free chain,
// points the pop cursor at the next allocated block and persists the index. The caller holds the data lock.
func (Q *Queue) retireBlock() (err error) {
	if !Q.header.Pop.IsNil() && len(Q.alloc) > 0 {
		Q.free = append(Q.free, Q.alloc[0])
		Q.alloc = Q.alloc[1:]
		Q.logger.Debug("retired block", zap.Uint64("block", Q.header.Pop.BlockID))
	}

	if len(Q.alloc) == 0 {
		Q.header.Pop = Q.header.NilCursor()
	} else {
		Q.header.Pop = Cursor{BlockID: Q.alloc[0], Slot: 0}
	}

	return Q.writeIndex()
}

// zeroBlock - Zero fills a block about to be appended to the data file. A block starting at the current end of
// file is created by extending the file, anything else is overwritten explicitly.
func (Q *Queue) zeroBlock(block uint64) (err error) {
	offset := Q.header.BlockOffset(block)
	size := int64(Q.header.BlockSize)

	stat, err := Q.dat.Stat()
	if err != nil {
		err = fmt.Errorf("unable to stat data file of queue %s: %w", Q.name, err)
		return
	}

	if stat.Size() <= offset {
		err = Q.dat.Truncate(offset + size)
	} else {
		err = utils.WriteZeros(Q.dat, offset, size)
	}
	if err != nil {
		err = fmt.Errorf("unable to zero fill block %d of queue %s: %w", block, Q.name, err)
	}

	return
}

// writeIndex - Persists header and chains under the index lock. The caller holds the data lock.
func (Q *Queue) writeIndex() (err error) {
	Q.idxLock.Lock()
	defer Q.idxLock.Unlock()

	Q.header.AllocCnt = uint64(len(Q.alloc))
	Q.header.FreeCnt = uint64(len(Q.free))

	return storage.WriteQueueIndex(Q.idxFileName, storage.QueueIndex{Header: Q.header, Alloc: Q.alloc, Free: Q.free})
}

// checkLength - Validates the length of a record buffer
func (Q *Queue) checkLength(data []byte) error {
	if uint64(len(data)) != Q.header.RecLen {
		return fmt.Errorf("%w: record has %d bytes, should be %d", ErrWrongLength, len(data), Q.header.RecLen)
	}

	return nil
}
