package main

import (
	"os"

	"github.com/dbops/toolkit/pkg/cli/cmd"
)

func main() {
	root := cmd.NewRootCommand(cmd.DefaultConfig())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
