package hashfunc

// Router - Interface that permits an implementation using the disk hash table to supply a custom bucket
// routing strategy suited for its particular distribution of keys.
// Both functions must be pure and deterministic, a table reopened with the same Router must route every key
// to the same bucket file as before.
type Router interface {
	// HashPrefix - Given key it returns the first width lowercase hexadecimal characters of a digest over the key.
	// The result is used purely to select a bucket, not for authentication. Implementations whose digest is shorter
	// than width characters return the full digest.
	//   - key is the key part of a record
	//   - width is the bucket id width in hexadecimal characters
	HashPrefix(key []byte, width int) string

	// Equals - Returns true if lhs and rhs are to be regarded as the same key.
	// Keys sharing a hash prefix end up in the same bucket file and are told apart by this function only.
	Equals(lhs, rhs []byte) bool
}
