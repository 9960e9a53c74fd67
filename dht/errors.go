package dht

import "errors"

var (
	// ErrWrongLength - A key or value did not have the length the table was opened with
	ErrWrongLength = errors.New("dht: wrong length")

	// ErrInvalidOptions - Options given to Open were not usable
	ErrInvalidOptions = errors.New("dht: invalid options")

	// ErrInvalidWidth - A bucket id width outside the supported range was given
	ErrInvalidWidth = errors.New("dht: invalid bucket id width")

	// ErrInvalidBucketID - A bucket id not matching the table's bucket id width was given
	ErrInvalidBucketID = errors.New("dht: invalid bucket id")

	// ErrClosed - The table has been closed
	ErrClosed = errors.New("dht: closed")
)
