// Command periscope is the command-line client for the Periscope server.
package main

import (
	"fmt"
	"os"

	"github.com/instantcocoa/periscope/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
