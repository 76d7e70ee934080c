package main

import (
	"os"

	"github.com/pairkit/server/cmd/pairctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
