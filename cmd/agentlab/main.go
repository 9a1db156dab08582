// Command agentlab plans, writes, codes and critiques research in bounded rounds.
package main

import (
	"os"

	"github.com/Iron-Ham/agentlab/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
