package utils

import (
	"fmt"
	"io"
)

// zeroChunkLength - Largest slice of zeros written in one go when zero filling file regions
const zeroChunkLength int64 = 1 << 20

// IsEqual - Returns true if a and b are equal both in size and contents
func IsEqual(a, b []byte) bool {
	lenA := len(a)
	if lenA != len(b) {
		return false
	}

	for i := 0; i < lenA; i++ {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

// HexID - Returns the zero padded lowercase hexadecimal representation of n with exactly width characters
func HexID(n int64, width int) string {
	return fmt.Sprintf("%0*x", width, n)
}

// WriteZeros - Writes length zero bytes to w starting at offset, in chunks to bound memory usage
func WriteZeros(w io.WriterAt, offset, length int64) (err error) {
	chunk := make([]byte, min(length, zeroChunkLength))
	for length > 0 {
		n := min(length, zeroChunkLength)
		_, err = w.WriteAt(chunk[:n], offset)
		if err != nil {
			return
		}
		offset += n
		length -= n
	}

	return
}
