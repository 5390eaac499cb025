package main

import (
	"fmt"
	"os"

	cmd "github.com/spyglass-browser/spyglass/cmd/spyglass"
)

func main() {
	rootCmd := cmd.GetRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
