package main

import (
	"os"

	"github.com/G-Research/idracsim/cmd/idracsim/cmd"
)

func main() {
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}
