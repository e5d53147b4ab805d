// Package main provides the entry point for the ctxsearch CLI.
package main

import (
	"os"

	"github.com/Warlord437/Context-Based-File-Search/cmd/ctxsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
