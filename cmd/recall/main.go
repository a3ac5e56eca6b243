// Package main provides the entry point for the recall CLI.
package main

import (
	"os"

	"github.com/keepmark/recall/cmd/recall/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
