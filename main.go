// Package main is the entry point for the rie CLI.
package main

import (
	"github.com/joho/godotenv"

	"rie.dev/pkg/rie/cmd"
)

func main() {
	// An optional .env in the working directory may carry RIE_* overrides.
	_ = godotenv.Load()

	cmd.Execute()
}
