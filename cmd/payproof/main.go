package main

import (
	"os"

	"github.com/telhawk-systems/payproof/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
