package main

import (
	"os"

	"courtfinder-backend/cmd/courtfinder-cli/cmd"
)

func main() {
	baseUrl, ok := os.LookupEnv("COURTFINDER_BASE_URL")
	if !ok {
		baseUrl = "http://localhost:8080"
	}
	cmd.BaseUrl = baseUrl

	cmd.Execute()
}
