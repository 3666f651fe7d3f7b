// Package main provides the entry point for the vectordb CLI.
package main

import (
	"os"

	"github.com/vectordb-io/vectordb/cmd/vectordb/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
