package main

import (
	"os"

	"github.com/hotosm/underpass/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
