package main

import (
	"os"

	"github.com/solatis/busprobe/cmd/busprobe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
