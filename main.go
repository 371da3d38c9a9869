package main

import (
	"os"

	"github.com/nlefebvre/collabnet/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
