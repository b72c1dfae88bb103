package main

import (
	"fmt"
	"os"

	"github.com/base/badge-authorizer/internal/command"
)

func main() {
	if err := command.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
