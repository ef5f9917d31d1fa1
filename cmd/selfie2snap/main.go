package main

import (
	"os"

	"github.com/selfie2snap/selfie2snap/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
