package main

import (
	"os"

	"github.com/cardlink-dev/cardlink/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
