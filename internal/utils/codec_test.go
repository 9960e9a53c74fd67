//go:build unit

package utils

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

type codecPair struct {
	A uint32
	B int16
}

func TestFixedSize(t *testing.T) {
	t.Run("fixed size types report their size", func(t *testing.T) {
		size, err := FixedSize(codecPair{})
		assert.NoError(t, err, "fixed size")
		assert.Equal(t, 6, size, "packed size")

		size, err = FixedSize(struct{}{})
		assert.NoError(t, err, "empty struct")
		assert.Equal(t, 0, size, "zero size")
	})

	t.Run("variable size types are rejected", func(t *testing.T) {
		_, err := FixedSize("text")
		assert.Error(t, err, "strings have no fixed size")

		_, err = FixedSize(0)
		assert.Error(t, err, "int is platform sized")
	})
}

func TestEncodeFixed(t *testing.T) {
	t.Run("encodes little endian and decodes back", func(t *testing.T) {
		// Prepare
		in := codecPair{A: 0x01020304, B: -2}

		// Execute
		buf, err := EncodeFixed(in, 6)

		// Check
		assert.NoError(t, err, "encodes")
		assert.Equal(t, []byte{4, 3, 2, 1, 0xfe, 0xff}, buf, "little endian layout")

		var out codecPair
		assert.NoError(t, DecodeFixed(buf, &out), "decodes")
		assert.Equal(t, in, out, "same value")
	})
}
