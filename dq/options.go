package dq

import (
	"fmt"
	"github.com/gostonefire/diskstore/internal/conf"
	"go.uber.org/zap"
)

// Options - Optional configuration given to Open. Zero values select the defaults.
//   - MaxBlockSize is the ceiling for the size of one data file block, zero selects 256 MiB. The effective block
//     size is the largest multiple of the record length not exceeding it.
//   - Logger receives structured log events, nil disables logging
type Options struct {
	MaxBlockSize int64
	Logger       *zap.Logger
}

// withDefaults - Returns a copy of the options with zero values replaced by defaults and validates the result
func (O Options) withDefaults(recLen int) (opts Options, err error) {
	opts = O

	if recLen <= 0 {
		err = fmt.Errorf("%w: record length must be a positive value higher than 0 (zero)", ErrInvalidOptions)
		return
	}
	if opts.MaxBlockSize == 0 {
		opts.MaxBlockSize = conf.DefaultMaxBlockSize
	}
	if opts.MaxBlockSize < int64(recLen) {
		err = fmt.Errorf("%w: max block size %d can not hold a single record of %d bytes",
			ErrInvalidOptions, opts.MaxBlockSize, recLen)
		return
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return
}
