package main

import (
	"os"

	"github.com/wavescribe/wavescribe/cmd/wavescribe/cmd"
	"github.com/wavescribe/wavescribe/pkg/logger"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("Application execution failed")
		os.Exit(1)
	}
}
