package hash

import (
	"crypto/md5"
	"encoding/hex"
	"github.com/cespare/xxhash/v2"
	"github.com/gostonefire/diskstore/internal/utils"
	"strconv"
	"strings"
)

// MD5Router - The internally used default bucket routing. It creates an MD5 digest over the key and uses the
// leading hexadecimal characters as bucket id. MD5 is used for its uniform spread only, not for authentication.
type MD5Router struct{}

// NewMD5Router - Returns a pointer to a new MD5Router instance
func NewMD5Router() *MD5Router {
	return &MD5Router{}
}

// HashPrefix - Returns the first width characters of the lowercase hexadecimal MD5 digest of key
func (M *MD5Router) HashPrefix(key []byte, width int) string {
	sum := md5.Sum(key)
	return prefix(hex.EncodeToString(sum[:]), width)
}

// Equals - Exact byte equality
func (M *MD5Router) Equals(lhs, rhs []byte) bool {
	return utils.IsEqual(lhs, rhs)
}

// XXHashRouter - Bucket routing based on the 64-bit xxhash of the key, rendered as 16 zero padded hexadecimal
// characters. Considerably faster than MD5 on long keys, but widths beyond 16 characters are capped.
type XXHashRouter struct{}

// NewXXHashRouter - Returns a pointer to a new XXHashRouter instance
func NewXXHashRouter() *XXHashRouter {
	return &XXHashRouter{}
}

// HashPrefix - Returns the first width characters of the hexadecimal xxhash64 of key
func (X *XXHashRouter) HashPrefix(key []byte, width int) string {
	s := strconv.FormatUint(xxhash.Sum64(key), 16)
	if len(s) < 16 {
		s = strings.Repeat("0", 16-len(s)) + s
	}
	return prefix(s, width)
}

// Equals - Exact byte equality
func (X *XXHashRouter) Equals(lhs, rhs []byte) bool {
	return utils.IsEqual(lhs, rhs)
}

// prefix - Returns the first width characters of s, or s if it is shorter
func prefix(s string, width int) string {
	if width < 0 {
		width = 0
	}
	if width > len(s) {
		return s
	}
	return s[:width]
}
