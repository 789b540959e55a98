package main

import (
	"os"

	"github.com/getgenie/genie/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
