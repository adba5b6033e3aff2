// Package main provides the entry point for the dupesweep CLI.
package main

import (
	"os"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/logging"
)

func main() {
	err := Execute()
	_ = logging.Close()
	if err != nil {
		os.Exit(1)
	}
}
