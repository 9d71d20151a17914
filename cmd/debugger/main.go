package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/akiselev/debugger-cli/internal/cli"
)

func main() {
	rootCmd := cli.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}
