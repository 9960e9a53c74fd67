package dq

import (
	"errors"
	"github.com/gostonefire/diskstore/internal/storage"
)

var (
	// ErrWrongLength - A record buffer did not have the record length the queue was opened with
	ErrWrongLength = errors.New("dq: wrong record length")

	// ErrIncompatible - An existing queue was opened with a different record length
	ErrIncompatible = errors.New("dq: incompatible record length")

	// ErrInvalidOptions - Arguments or options given to Open were not usable
	ErrInvalidOptions = errors.New("dq: invalid options")

	// ErrClosed - The queue has been closed
	ErrClosed = errors.New("dq: closed")

	// ErrCorruptIndex - The queue index file could not be decoded or disagrees with itself
	ErrCorruptIndex = storage.ErrCorruptIndex
)
