// Command logsift extracts anomalous lines from a target log by comparing
// it against nominal baselines.
package main

import (
	"fmt"
	"os"

	"github.com/logsift/logsift/cmd/logsift/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "logsift: %v\n", err)
		os.Exit(1)
	}
}
