package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/gostonefire/diskstore/internal/conf"
	"github.com/gostonefire/diskstore/internal/model"
	"github.com/natefinch/atomic"
	"os"
)

// ErrCorruptIndex - Returned when a queue index file can not be decoded
var ErrCorruptIndex = errors.New("corrupt queue index")

// QueueIndex - Represents the full content of a queue index file, the header followed by the allocated chain and
// the free chain. The chains are positional lists sized by the header counts.
type QueueIndex struct {
	Header model.QueueHeader
	Alloc  []uint64
	Free   []uint64
}

// WriteQueueIndex - Encodes index and replaces the file atomically.
// Header AllocCnt and FreeCnt are taken from the chain lengths.
func WriteQueueIndex(fileName string, index QueueIndex) (err error) {
	index.Header.AllocCnt = uint64(len(index.Alloc))
	index.Header.FreeCnt = uint64(len(index.Free))

	buf := queueIndexToBytes(index)

	err = atomic.WriteFile(fileName, bytes.NewReader(buf))
	if err != nil {
		err = fmt.Errorf("unable to write queue index %s: %w", fileName, err)
	}

	return
}

// ReadQueueIndex - Reads and decodes a queue index file
func ReadQueueIndex(fileName string) (index QueueIndex, err error) {
	buf, err := os.ReadFile(fileName)
	if err != nil {
		err = fmt.Errorf("unable to read queue index %s: %w", fileName, err)
		return
	}

	index, err = bytesToQueueIndex(buf)
	if err != nil {
		err = fmt.Errorf("%s: %w", fileName, err)
	}

	return
}

// queueIndexToBytes - Converts a QueueIndex struct to a slice of bytes
func queueIndexToBytes(index QueueIndex) (buf []byte) {
	h := index.Header
	buf = make([]byte, conf.QueueHeaderLength+conf.BlockIDLength*int64(len(index.Alloc)+len(index.Free)))

	copy(buf[conf.MagicOffset:], conf.QueueIndexMagic)
	binary.LittleEndian.PutUint32(buf[conf.VersionOffset:], conf.QueueIndexVersion)
	binary.LittleEndian.PutUint64(buf[conf.BlockSizeOffset:], h.BlockSize)
	binary.LittleEndian.PutUint64(buf[conf.RecLenOffset:], h.RecLen)
	binary.LittleEndian.PutUint64(buf[conf.MaxBlockSizeOffset:], h.MaxBlockSize)
	binary.LittleEndian.PutUint64(buf[conf.RecsPerBlockOffset:], h.RecsPerBlock)
	binary.LittleEndian.PutUint64(buf[conf.RecCntOffset:], h.RecCnt)
	binary.LittleEndian.PutUint64(buf[conf.BlockCntOffset:], h.BlockCnt)
	binary.LittleEndian.PutUint64(buf[conf.AllocCntOffset:], h.AllocCnt)
	binary.LittleEndian.PutUint64(buf[conf.FreeCntOffset:], h.FreeCnt)
	binary.LittleEndian.PutUint64(buf[conf.PushBlockOffset:], h.Push.BlockID)
	binary.LittleEndian.PutUint64(buf[conf.PushSlotOffset:], h.Push.Slot)
	binary.LittleEndian.PutUint64(buf[conf.PopBlockOffset:], h.Pop.BlockID)
	binary.LittleEndian.PutUint64(buf[conf.PopSlotOffset:], h.Pop.Slot)

	offset := conf.QueueHeaderLength
	for _, id := range index.Alloc {
		binary.LittleEndian.PutUint64(buf[offset:], id)
		offset += conf.BlockIDLength
	}
	for _, id := range index.Free {
		binary.LittleEndian.PutUint64(buf[offset:], id)
		offset += conf.BlockIDLength
	}

	return
}

// bytesToQueueIndex - Converts a slice of bytes to a QueueIndex struct
func bytesToQueueIndex(buf []byte) (index QueueIndex, err error) {
	if int64(len(buf)) < conf.QueueHeaderLength {
		err = fmt.Errorf("%w: header truncated at %d bytes", ErrCorruptIndex, len(buf))
		return
	}
	if string(buf[conf.MagicOffset:conf.MagicOffset+4]) != conf.QueueIndexMagic {
		err = fmt.Errorf("%w: bad magic", ErrCorruptIndex)
		return
	}
	if v := binary.LittleEndian.Uint32(buf[conf.VersionOffset:]); v != conf.QueueIndexVersion {
		err = fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, v)
		return
	}

	h := model.QueueHeader{
		BlockSize:    binary.LittleEndian.Uint64(buf[conf.BlockSizeOffset:]),
		RecLen:       binary.LittleEndian.Uint64(buf[conf.RecLenOffset:]),
		MaxBlockSize: binary.LittleEndian.Uint64(buf[conf.MaxBlockSizeOffset:]),
		RecsPerBlock: binary.LittleEndian.Uint64(buf[conf.RecsPerBlockOffset:]),
		RecCnt:       binary.LittleEndian.Uint64(buf[conf.RecCntOffset:]),
		BlockCnt:     binary.LittleEndian.Uint64(buf[conf.BlockCntOffset:]),
		AllocCnt:     binary.LittleEndian.Uint64(buf[conf.AllocCntOffset:]),
		FreeCnt:      binary.LittleEndian.Uint64(buf[conf.FreeCntOffset:]),
		Push: model.Cursor{
			BlockID: binary.LittleEndian.Uint64(buf[conf.PushBlockOffset:]),
			Slot:    binary.LittleEndian.Uint64(buf[conf.PushSlotOffset:]),
		},
		Pop: model.Cursor{
			BlockID: binary.LittleEndian.Uint64(buf[conf.PopBlockOffset:]),
			Slot:    binary.LittleEndian.Uint64(buf[conf.PopSlotOffset:]),
		},
	}

	if h.RecLen == 0 || h.RecsPerBlock == 0 || h.BlockSize != h.RecLen*h.RecsPerBlock {
		err = fmt.Errorf("%w: inconsistent record geometry", ErrCorruptIndex)
		return
	}
	if h.AllocCnt+h.FreeCnt > h.BlockCnt {
		err = fmt.Errorf("%w: %d chained blocks exceed %d allocated", ErrCorruptIndex, h.AllocCnt+h.FreeCnt, h.BlockCnt)
		return
	}

	expected := conf.QueueHeaderLength + conf.BlockIDLength*int64(h.AllocCnt+h.FreeCnt)
	if int64(len(buf)) < expected {
		err = fmt.Errorf("%w: chains truncated, expected %d bytes got %d", ErrCorruptIndex, expected, len(buf))
		return
	}

	index.Header = h
	index.Alloc = make([]uint64, h.AllocCnt)
	index.Free = make([]uint64, h.FreeCnt)

	offset := conf.QueueHeaderLength
	for i := range index.Alloc {
		index.Alloc[i] = binary.LittleEndian.Uint64(buf[offset:])
		offset += conf.BlockIDLength
	}
	for i := range index.Free {
		index.Free[i] = binary.LittleEndian.Uint64(buf[offset:])
		offset += conf.BlockIDLength
	}

	return
}
