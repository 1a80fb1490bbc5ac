package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chazu/tern/stdlib"
)

// handleStdCommand processes the `tern std` subcommand.
// Usage:
//
//	tern std              # print the runtime artifact, building it if needed
//	tern std -o std.tlib  # write the runtime to a chosen location
func handleStdCommand(args []string) int {
	fs := flag.NewFlagSet("std", flag.ExitOnError)
	out := fs.String("o", "", "Write the runtime artifact here")
	fs.Parse(args)

	if *out != "" {
		if err := stdlib.Build(*out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println(*out)
		return 0
	}
	path, err := stdlib.Locate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("%s (hash %s)\n", path, stdlib.Hash()[:16])
	return 0
}
