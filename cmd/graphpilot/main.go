package main

import (
	"os"

	"github.com/wwwzy/GraphPilot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
