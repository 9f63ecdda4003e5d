// Package main provides the entry point for the repoindex CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/repoindex/cmd/repoindex/cmd"
	"github.com/Aman-CERP/repoindex/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errors.FormatForCLI(err))
		os.Exit(1)
	}
}
