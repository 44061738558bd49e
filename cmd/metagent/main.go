package main

import (
	"fmt"
	"os"

	"github.com/iskng/metagent/internal/cmd"
	"github.com/iskng/metagent/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errors.ExitCode(err))
	}
}
