// Package main is the entry point of the onui CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/lumiknit/onui/cmd/onui/commands"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	rootCmd := commands.NewRootCmd(version)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "onui: %v\n", err)
		os.Exit(1)
	}
}
