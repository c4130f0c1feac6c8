package main

import (
	"os"

	"mtsim/cmd/mtsim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
