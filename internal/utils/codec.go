package utils

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// FixedSize - Returns the encoded size of values of the type of v, or an error if the type has no fixed size
func FixedSize(v any) (size int, err error) {
	size = binary.Size(v)
	if size < 0 {
		err = fmt.Errorf("type %T has no fixed size encoding", v)
	}

	return
}

// EncodeFixed - Encodes a fixed size value little endian into a new slice of exactly size bytes
func EncodeFixed(v any, size int) (buf []byte, err error) {
	b := bytes.NewBuffer(make([]byte, 0, size))
	err = binary.Write(b, binary.LittleEndian, v)
	if err != nil {
		return
	}
	buf = b.Bytes()

	return
}

// DecodeFixed - Decodes a little endian encoded fixed size value from buf into the value pointed to by v
func DecodeFixed(buf []byte, v any) error {
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, v)
}
