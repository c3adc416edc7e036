package main

import (
	"fmt"
	"os"

	"github.com/fmuoria/cv-inbox-screener/cmd"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
