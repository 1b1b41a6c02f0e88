package main

import (
	"os"

	"SRLevels/cmd/srlevels/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
