package main

import (
	"os"

	"github.com/sefs-io/sefs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
