//go:build unit

package hash

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestMD5Router_HashPrefix(t *testing.T) {
	t.Run("returns leading characters of the hex digest", func(t *testing.T) {
		// Prepare
		r := NewMD5Router()

		// Execute
		id := r.HashPrefix([]byte("abc"), 3)

		// Check
		assert.Equal(t, "900", id, "md5(abc) starts with 900150983cd24fb0")
		assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", r.HashPrefix([]byte("abc"), 64), "width capped at digest length")
	})

	t.Run("is deterministic", func(t *testing.T) {
		// Prepare
		r := NewMD5Router()
		key := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

		// Execute
		first := r.HashPrefix(key, 4)
		second := NewMD5Router().HashPrefix(key, 4)

		// Check
		assert.Equal(t, first, second, "same key same bucket")
		assert.Len(t, first, 4, "fixed width")
	})
}

func TestXXHashRouter_HashPrefix(t *testing.T) {
	t.Run("returns fixed width lowercase hex", func(t *testing.T) {
		// Prepare
		r := NewXXHashRouter()

		// Execute
		id := r.HashPrefix([]byte("abc"), 5)
		full := r.HashPrefix([]byte("abc"), 40)

		// Check
		assert.Len(t, id, 5, "fixed width")
		assert.Len(t, full, 16, "capped at 16 characters")
		assert.Equal(t, full[:5], id, "prefix of the full digest")
		assert.Regexp(t, "^[0-9a-f]+$", full, "lowercase hex")
	})
}

func TestRouter_Equals(t *testing.T) {
	t.Run("exact byte equality", func(t *testing.T) {
		for _, r := range []interface {
			Equals(lhs, rhs []byte) bool
		}{NewMD5Router(), NewXXHashRouter()} {
			assert.True(t, r.Equals([]byte{1, 2, 3}, []byte{1, 2, 3}), "equal keys")
			assert.False(t, r.Equals([]byte{1, 2, 3}, []byte{1, 2, 4}), "different keys")
			assert.False(t, r.Equals([]byte{1, 2, 3}, []byte{1, 2}), "different lengths")
		}
	})
}
