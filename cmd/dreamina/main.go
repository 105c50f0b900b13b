package main

import (
	"os"

	"github.com/psantana5/dreamina/cmd/dreamina/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
