package main

import (
	"os"

	"github.com/tessro/elixir/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
