// Package main provides the entry point for the contentindex CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/contentindex/cmd/contentindex/cmd"
	ierrors "github.com/Aman-CERP/contentindex/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		_, _ = os.Stderr.WriteString(ierrors.FormatForCLI(err))
		os.Exit(1)
	}
}
