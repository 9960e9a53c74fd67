//go:build unit

package dq

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

type job struct {
	A int32
	B int32
}

func TestOpenTyped(t *testing.T) {
	t.Run("pushes and pops typed values in order", func(t *testing.T) {
		// Prepare
		queue, err := OpenTyped[job](t.TempDir(), "jobs", Options{MaxBlockSize: 8 * 3})
		require.NoError(t, err, "opens typed queue")
		defer func() { assert.NoError(t, queue.Close(), "closes queue") }()

		// Execute
		for i := int32(0); i < 20; i++ {
			require.NoError(t, queue.Push(job{A: i, B: i * 2}), "pushes")
		}

		// Check
		assert.Equal(t, 8, queue.Queue().RecLen(), "record length from type")
		assert.Equal(t, uint64(20), queue.Size(), "size")
		for i := int32(0); i < 20; i++ {
			v, found, err := queue.Pop()
			require.NoError(t, err, "pops")
			require.True(t, found, "found")
			assert.Equal(t, job{A: i, B: i * 2}, v, "value in order")
		}
		_, found, err := queue.Pop()
		assert.NoError(t, err, "pops empty")
		assert.False(t, found, "empty")
		assert.True(t, queue.Empty(), "drained")
	})

	t.Run("rejects types without a fixed size", func(t *testing.T) {
		// Execute
		_, err := OpenTyped[string](t.TempDir(), "strings", Options{})

		// Check
		assert.ErrorIs(t, err, ErrInvalidOptions, "variable size type")
	})
}
