package cli

import (
	"fmt"
	"go.uber.org/zap"
)

// NewLogger - Returns a production logger, or a development logger at debug level when verbose is set
func NewLogger(verbose bool) (logger *zap.Logger, err error) {
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		err = fmt.Errorf("unable to create logger: %w", err)
	}

	return
}
