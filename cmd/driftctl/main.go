package main

import (
	"os"

	"github.com/driftaudio/driftd/cmd/driftctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
