//go:build unit

package dq

import (
	"encoding/binary"
	"github.com/google/go-cmp/cmp"
	"github.com/gostonefire/diskstore/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"os"
	"runtime"
	"sync/atomic"
	"testing"
)

func record(n uint64) []byte {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, n)
	return data
}

func openTestQueue(t *testing.T, path string, opts Options) *Queue {
	t.Helper()

	queue, err := Open(path, "q", 8, opts)
	require.NoError(t, err, "opens queue")
	t.Cleanup(func() { _ = queue.Close() })

	return queue
}

func TestOpen(t *testing.T) {
	t.Run("creates index and data files", func(t *testing.T) {
		// Prepare
		path := t.TempDir()

		// Execute
		queue, err := Open(path, "q", 8, Options{})

		// Check
		assert.NoError(t, err, "opens queue")
		idx, dat := storage.GetQueueFileNames(path, "q")
		assert.FileExists(t, idx, "index file")
		assert.FileExists(t, dat, "data file")
		stats := queue.Stats()
		assert.Equal(t, uint64(8), stats.RecLen, "record length")
		assert.Equal(t, uint64(256*1024*1024/8), stats.RecsPerBlock, "default block size")
		assert.True(t, stats.Push.IsNil(), "no push block yet")
		assert.True(t, stats.Pop.IsNil(), "no pop block yet")
		assert.True(t, queue.Empty(), "empty")

		// Clean up
		assert.NoError(t, queue.Close(), "closes queue")
	})

	t.Run("truncates the block size to whole records", func(t *testing.T) {
		// Execute
		queue := openTestQueue(t, t.TempDir(), Options{MaxBlockSize: 30})

		// Check
		stats := queue.Stats()
		assert.Equal(t, uint64(3), stats.RecsPerBlock, "three records per block")
		assert.Equal(t, uint64(24), stats.BlockSize, "effective block size")
	})

	t.Run("rejects invalid arguments", func(t *testing.T) {
		// Prepare
		path := t.TempDir()

		// Execute
		_, errName := Open(path, "", 8, Options{})
		_, errRecLen := Open(path, "q", 0, Options{})
		_, errMax := Open(path, "q", 8, Options{MaxBlockSize: 7})

		// Check
		assert.ErrorIs(t, errName, ErrInvalidOptions, "empty name")
		assert.ErrorIs(t, errRecLen, ErrInvalidOptions, "zero record length")
		assert.ErrorIs(t, errMax, ErrInvalidOptions, "block smaller than a record")
	})

	t.Run("rejects a different record length for an existing queue", func(t *testing.T) {
		// Prepare
		path := t.TempDir()
		queue, err := Open(path, "q", 8, Options{})
		require.NoError(t, err, "opens queue")
		require.NoError(t, queue.Close(), "closes queue")

		// Execute
		_, err = Open(path, "q", 4, Options{})

		// Check
		assert.ErrorIs(t, err, ErrIncompatible, "record length mismatch")
	})

	t.Run("rejects a corrupt index", func(t *testing.T) {
		// Prepare
		path := t.TempDir()
		queue, err := Open(path, "q", 8, Options{})
		require.NoError(t, err, "opens queue")
		require.NoError(t, queue.Close(), "closes queue")
		idx, _ := storage.GetQueueFileNames(path, "q")
		require.NoError(t, os.WriteFile(idx, []byte("garbage"), 0644), "overwrites index")

		// Execute
		_, err = Open(path, "q", 8, Options{})

		// Check
		assert.ErrorIs(t, err, ErrCorruptIndex, "corrupt index")
	})
}

func TestQueue_PushPop(t *testing.T) {
	t.Run("pops in push order", func(t *testing.T) {
		// Prepare
		queue := openTestQueue(t, t.TempDir(), Options{MaxBlockSize: 32})
		for i := uint64(0); i < 10; i++ {
			require.NoError(t, queue.Push(record(i)), "pushes")
		}

		// Execute
		var got []uint64
		data := make([]byte, 8)
		for {
			found, err := queue.Pop(data)
			require.NoError(t, err, "pops")
			if !found {
				break
			}
			got = append(got, binary.LittleEndian.Uint64(data))
		}

		// Check
		if diff := cmp.Diff([]uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got); diff != "" {
			t.Errorf("unexpected pop order (-want +got):\n%s", diff)
		}
		assert.True(t, queue.Empty(), "drained")
	})

	t.Run("pop on an empty queue leaves the buffer alone", func(t *testing.T) {
		// Prepare
		queue := openTestQueue(t, t.TempDir(), Options{})
		data := record(77)

		// Execute
		found, err := queue.Pop(data)

		// Check
		assert.NoError(t, err, "pops")
		assert.False(t, found, "nothing to pop")
		assert.Equal(t, record(77), data, "buffer untouched")
	})

	t.Run("rejects buffers of the wrong length", func(t *testing.T) {
		// Prepare
		queue := openTestQueue(t, t.TempDir(), Options{})

		// Execute
		errPush := queue.Push([]byte{1, 2, 3})
		_, errPop := queue.Pop(make([]byte, 9))

		// Check
		assert.ErrorIs(t, errPush, ErrWrongLength, "push")
		assert.ErrorIs(t, errPop, ErrWrongLength, "pop")
		assert.Equal(t, uint64(0), queue.Size(), "nothing pushed")
	})

	t.Run("refills after draining to empty", func(t *testing.T) {
		// Prepare
		queue := openTestQueue(t, t.TempDir(), Options{MaxBlockSize: 32})
		data := make([]byte, 8)
		require.NoError(t, queue.Push(record(1)), "pushes")
		_, err := queue.Pop(data)
		require.NoError(t, err, "pops")

		// Execute
		require.NoError(t, queue.Push(record(2)), "pushes after drain")
		found, err := queue.Pop(data)

		// Check
		assert.NoError(t, err, "pops")
		assert.True(t, found, "record found")
		assert.Equal(t, record(2), data, "refilled record")
	})
}

func TestQueue_Blocks(t *testing.T) {
	t.Run("crossing a block boundary allocates and later recycles", func(t *testing.T) {
		// Prepare
		path := t.TempDir()
		queue := openTestQueue(t, path, Options{MaxBlockSize: 32})
		const recsPerBlock = 4
		data := make([]byte, 8)

		// Execute
		for i := uint64(0); i < recsPerBlock+1; i++ {
			require.NoError(t, queue.Push(record(i)), "pushes")
		}
		for i := uint64(0); i < recsPerBlock+1; i++ {
			found, err := queue.Pop(data)
			require.NoError(t, err, "pops")
			require.True(t, found, "found")
			require.Equal(t, record(i), data, "order")
		}

		// Check
		stats := queue.Stats()
		assert.Equal(t, uint64(recsPerBlock), stats.RecsPerBlock, "records per block")
		assert.Equal(t, uint64(2), stats.Blocks, "exactly two blocks allocated")
		assert.Equal(t, []uint64{1}, stats.Allocated, "second block in use")
		assert.Equal(t, []uint64{0}, stats.Free, "first block freed")
		assert.True(t, queue.Empty(), "drained")

		// Fill the rest of block 1, the next push has to take block 0 from the free chain
		for i := uint64(0); i < recsPerBlock-1; i++ {
			require.NoError(t, queue.Push(record(100+i)), "fills block")
		}
		assert.Equal(t, uint64(2), queue.Stats().Blocks, "no block needed yet")
		require.NoError(t, queue.Push(record(200)), "pushes into next block")

		stats = queue.Stats()
		assert.Equal(t, uint64(2), stats.Blocks, "no new block appended")
		assert.Equal(t, []uint64{1, 0}, stats.Allocated, "first block reused")
		assert.Empty(t, stats.Free, "free chain consumed")
		assert.Equal(t, Cursor{BlockID: 0, Slot: 1}, stats.Push, "pushing into recycled block")

		_, dat := storage.GetQueueFileNames(path, "q")
		info, err := os.Stat(dat)
		assert.NoError(t, err, "stats data file")
		assert.Equal(t, int64(64), info.Size(), "data file holds two blocks")

		for _, want := range []uint64{100, 101, 102, 200} {
			found, err := queue.Pop(data)
			require.NoError(t, err, "pops")
			require.True(t, found, "found")
			assert.Equal(t, record(want), data, "order across recycled block")
		}
	})

	t.Run("index is persisted on block boundaries", func(t *testing.T) {
		// Prepare
		path := t.TempDir()
		queue := openTestQueue(t, path, Options{MaxBlockSize: 16})
		idx, _ := storage.GetQueueFileNames(path, "q")

		// Execute
		for i := uint64(0); i < 3; i++ {
			require.NoError(t, queue.Push(record(i)), "pushes")
		}

		// Check
		index, err := storage.ReadQueueIndex(idx)
		assert.NoError(t, err, "reads index")
		assert.Equal(t, uint64(2), index.Header.BlockCnt, "second block persisted")
		assert.Equal(t, []uint64{0, 1}, index.Alloc, "allocated chain persisted")
		assert.Equal(t, Cursor{BlockID: 1, Slot: 0}, index.Header.Push, "cursor at the boundary")
	})
}

func TestQueue_Size(t *testing.T) {
	for _, tc := range []struct{ pushes, pops int }{{0, 0}, {1, 0}, {5, 5}, {9, 4}, {17, 16}} {
		t.Run("size follows pushes and pops", func(t *testing.T) {
			// Prepare
			queue := openTestQueue(t, t.TempDir(), Options{MaxBlockSize: 24})
			data := make([]byte, 8)

			// Execute
			for i := 0; i < tc.pushes; i++ {
				require.NoError(t, queue.Push(record(uint64(i))), "pushes")
			}
			for i := 0; i < tc.pops; i++ {
				_, err := queue.Pop(data)
				require.NoError(t, err, "pops")
			}

			// Check
			assert.Equal(t, uint64(tc.pushes-tc.pops), queue.Size(), "size")
			assert.Equal(t, tc.pushes == tc.pops, queue.Empty(), "empty")
		})
	}
}

func TestQueue_Persistence(t *testing.T) {
	t.Run("reopened queue continues where it stopped", func(t *testing.T) {
		// Prepare
		path := t.TempDir()
		queue, err := Open(path, "q", 8, Options{MaxBlockSize: 24})
		require.NoError(t, err, "opens queue")
		data := make([]byte, 8)
		for i := uint64(0); i < 10; i++ {
			require.NoError(t, queue.Push(record(i)), "pushes")
		}
		for i := 0; i < 4; i++ {
			_, err = queue.Pop(data)
			require.NoError(t, err, "pops")
		}
		before := queue.Stats()
		require.NoError(t, queue.Close(), "closes queue")

		// Execute
		reopened, err := Open(path, "q", 8, Options{MaxBlockSize: 24})
		require.NoError(t, err, "reopens queue")
		defer func() { assert.NoError(t, reopened.Close(), "closes reopened queue") }()

		// Check
		assert.Equal(t, before, reopened.Stats(), "bookkeeping restored")
		assert.Equal(t, uint64(6), reopened.Size(), "size restored")
		for i := uint64(4); i < 10; i++ {
			found, err := reopened.Pop(data)
			require.NoError(t, err, "pops")
			require.True(t, found, "found")
			assert.Equal(t, record(i), data, "order after reopen")
		}
		assert.True(t, reopened.Empty(), "drained")
	})

	t.Run("flush makes cursors durable without closing", func(t *testing.T) {
		// Prepare
		path := t.TempDir()
		queue := openTestQueue(t, path, Options{MaxBlockSize: 64})
		require.NoError(t, queue.Push(record(1)), "pushes")
		require.NoError(t, queue.Push(record(2)), "pushes")
		idx, _ := storage.GetQueueFileNames(path, "q")

		// Execute
		err := queue.Flush()

		// Check
		assert.NoError(t, err, "flushes")
		index, err := storage.ReadQueueIndex(idx)
		assert.NoError(t, err, "reads index")
		assert.Equal(t, uint64(2), index.Header.RecCnt, "record count persisted")
		assert.Equal(t, Cursor{BlockID: 0, Slot: 2}, index.Header.Push, "push cursor persisted")
	})

	t.Run("closed queue refuses operations", func(t *testing.T) {
		// Prepare
		queue, err := Open(t.TempDir(), "q", 8, Options{})
		require.NoError(t, err, "opens queue")

		// Execute
		require.NoError(t, queue.Close(), "closes queue")

		// Check
		assert.ErrorIs(t, queue.Push(record(1)), ErrClosed, "push")
		_, err = queue.Pop(make([]byte, 8))
		assert.ErrorIs(t, err, ErrClosed, "pop")
		assert.ErrorIs(t, queue.Flush(), ErrClosed, "flush")
		assert.NoError(t, queue.Close(), "close is idempotent")
	})
}

func TestQueue_Concurrency(t *testing.T) {
	t.Run("every consumer sees records in push order", func(t *testing.T) {
		// Prepare
		queue := openTestQueue(t, t.TempDir(), Options{MaxBlockSize: 8 * 16})
		const total = 5000
		const consumers = 4
		var popped atomic.Int64
		seen := make([][]uint64, consumers)
		var g errgroup.Group

		// Execute
		g.Go(func() error {
			for i := uint64(0); i < total; i++ {
				if err := queue.Push(record(i)); err != nil {
					return err
				}
			}
			return nil
		})
		for c := 0; c < consumers; c++ {
			g.Go(func() error {
				data := make([]byte, 8)
				for popped.Load() < total {
					found, err := queue.Pop(data)
					if err != nil {
						return err
					}
					if !found {
						runtime.Gosched()
						continue
					}
					popped.Add(1)
					seen[c] = append(seen[c], binary.LittleEndian.Uint64(data))
				}
				return nil
			})
		}
		err := g.Wait()

		// Check
		require.NoError(t, err, "runs producer and consumers")
		all := make([]bool, total)
		for c := range seen {
			for i, v := range seen[c] {
				if i > 0 {
					require.Less(t, seen[c][i-1], v, "consumer %d got records out of order", c)
				}
				require.False(t, all[v], "record %d popped twice", v)
				all[v] = true
			}
		}
		for v, ok := range all {
			require.True(t, ok, "record %d never popped", v)
		}
		assert.True(t, queue.Empty(), "drained")
	})
}
