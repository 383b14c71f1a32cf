package main

import (
	"os"

	"github.com/Gribbirg/deadline-mate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
