// Package main provides the entry point for the swarmmem CLI.
package main

import (
	"os"

	"github.com/Dadudekc/swarmmem/cmd/swarmmem/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
