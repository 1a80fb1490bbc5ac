package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chazu/tern/classpath"
	"github.com/chazu/tern/manifest"
)

// handleBuildCommand processes the `tern build` subcommand.
// Usage:
//
//	tern build               # write the artifact named in tern.toml
//	tern build -o app.tdb    # custom output, layout from the extension
func handleBuildCommand(m *manifest.Manifest, args []string) int {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	out := fs.String("o", "", "Output artifact (.tlib, .tdb or a directory)")
	fs.Parse(args)

	if m == nil {
		fmt.Fprintln(os.Stderr, "Error: no tern.toml found")
		return 1
	}
	if *out == "" {
		*out = m.OutputPath()
	}

	runtime, err := runtimeLocator(m).Locate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	deps, err := manifest.NewResolver(m, runtime).Resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving dependencies: %v\n", err)
		return 1
	}
	cp, err := classpath.New(runtime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	for _, e := range append(m.ClasspathEntries(), manifest.DepClasspath(deps)...) {
		if err := cp.Add(e); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if err := m.BuildTo(cp.Freeze(), *out); err != nil {
		fmt.Fprintf(os.Stderr, "Error building: %v\n", err)
		return 1
	}
	fmt.Printf("Built %s\n", *out)
	return 0
}
