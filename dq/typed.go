package dq

import (
	"fmt"
	"github.com/gostonefire/diskstore/internal/utils"
)

// TypedQueue - A Queue holding values of a fixed size type T. Values are stored little endian as laid out by
// encoding/binary, so T may only contain fixed size fields.
type TypedQueue[T any] struct {
	queue *Queue
	size  int
}

// OpenTyped - Opens a queue whose record length is the encoded size of T, see Open
func OpenTyped[T any](path, name string, opts Options) (typed *TypedQueue[T], err error) {
	var zero T
	size, err := utils.FixedSize(zero)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidOptions, err)
		return
	}

	queue, err := Open(path, name, size, opts)
	if err != nil {
		return
	}

	typed = &TypedQueue[T]{queue: queue, size: size}

	return
}

// Push - Appends v at the back of the queue
func (Q *TypedQueue[T]) Push(v T) (err error) {
	data, err := utils.EncodeFixed(v, Q.size)
	if err != nil {
		return
	}

	return Q.queue.Push(data)
}

// Pop - Removes the value at the front of the queue, found is false if the queue was empty
func (Q *TypedQueue[T]) Pop() (v T, found bool, err error) {
	data := make([]byte, Q.size)
	found, err = Q.queue.Pop(data)
	if err != nil || !found {
		return
	}

	err = utils.DecodeFixed(data, &v)

	return
}

// Empty - Returns true if the queue holds no values
func (Q *TypedQueue[T]) Empty() bool {
	return Q.queue.Empty()
}

// Size - Returns the number of values in the queue
func (Q *TypedQueue[T]) Size() uint64 {
	return Q.queue.Size()
}

// Queue - Returns the underlying byte record queue
func (Q *TypedQueue[T]) Queue() *Queue {
	return Q.queue
}

// Close - Closes the underlying queue
func (Q *TypedQueue[T]) Close() error {
	return Q.queue.Close()
}
