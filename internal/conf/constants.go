package conf

// DefaultBucketIDWidth - Default number of hexadecimal characters in a bucket id, giving 16^3 = 4096 buckets
const DefaultBucketIDWidth int = 3

// MinBucketIDWidth - Smallest permitted bucket id width
const MinBucketIDWidth int = 1

// MaxBucketIDWidth - Largest permitted bucket id width (16^6 possible bucket files)
const MaxBucketIDWidth int = 6

// BucketFileSuffix - File name suffix of hash table bucket files
const BucketFileSuffix string = ".bin"

// QueueIndexSuffix - File name suffix of a queue index file
const QueueIndexSuffix string = ".idx"

// QueueDataSuffix - File name suffix of a queue data file
const QueueDataSuffix string = ".dat"

// DefaultMaxBlockSize - Default ceiling for a queue block size, 256 MiB
const DefaultMaxBlockSize int64 = 256 * 1024 * 1024

// NilBlock - Block id used by cursors that currently have no block
const NilBlock uint64 = ^uint64(0)

// QueueIndexMagic - Leading bytes of a queue index file
const QueueIndexMagic string = "DQIX"

// QueueIndexVersion - Format version of the queue index file
const QueueIndexVersion uint32 = 1

// QueueHeaderLength - Length of the fixed part of the queue index file
const QueueHeaderLength int64 = 104

// BlockIDLength - Length of one block id in the queue index chains
const BlockIDLength int64 = 8

// Queue index header offsets, all integers are little endian
const (
	MagicOffset        int64 = 0  // 4 bytes
	VersionOffset      int64 = 4  // 4 bytes
	BlockSizeOffset    int64 = 8  // 8 bytes
	RecLenOffset       int64 = 16 // 8 bytes
	MaxBlockSizeOffset int64 = 24 // 8 bytes
	RecsPerBlockOffset int64 = 32 // 8 bytes
	RecCntOffset       int64 = 40 // 8 bytes
	BlockCntOffset     int64 = 48 // 8 bytes
	AllocCntOffset     int64 = 56 // 8 bytes
	FreeCntOffset      int64 = 64 // 8 bytes
	PushBlockOffset    int64 = 72 // 8 bytes
	PushSlotOffset     int64 = 80 // 8 bytes
	PopBlockOffset     int64 = 88 // 8 bytes
	PopSlotOffset      int64 = 96 // 8 bytes
)

// ScanChunkRecords - Number of records read per chunk when scanning a bucket file without a cached image
const ScanChunkRecords int64 = 4096
