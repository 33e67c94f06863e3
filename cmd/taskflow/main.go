package main

import (
	"context"
	"fmt"
	"os"

	"github.com/taskmaster/taskflow/cmd/taskflow/commands"
)

func main() {
	rootCmd := commands.NewRootCommand()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
