package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chazu/tern/harness"
	"github.com/chazu/tern/manifest"
)

// handleRunCommand processes the `tern run` subcommand.
// Usage:
//
//	tern run file.tn [args...]                     # invoke main, print the result
//	tern run -e sum -expect 6 file.tn 1 5          # require a return value
//	tern run -throws IllegalStateException file.tn # require a failure
func handleRunCommand(m *manifest.Manifest, args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	entry := fs.String("e", "", "Entry function (default from tern.toml, else main)")
	class := fs.String("class", "", "Class declaring the entry function")
	desc := fs.String("desc", "", "Descriptor of the entry function, e.g. (II)I")
	expect := fs.String("expect", "", "Required return value")
	throws := fs.String("throws", "", "Required failure class")
	message := fs.String("message", "", "Text the failure message must contain")
	output := fs.String("output", "", "Required program output (\\n for newlines)")
	hostErrors := fs.String("host-errors", "", "Host error policy: assertable or fatal")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: run requires a source file")
		return 2
	}
	h, err := newHarness(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *hostErrors != "" {
		if h.HostErrors, err = harness.ParseHostErrorPolicy(*hostErrors); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 2
		}
	}

	name := *entry
	if name == "" {
		name = "main"
		if m != nil {
			name = m.Run.Entry
		}
	}
	ep := harness.Entry(name).In(*class).WithDesc(*desc)

	x := harness.NoThrow()
	switch {
	case *throws != "" || *message != "":
		x = harness.Throws(*throws, *message)
	case *expect != "":
		x = harness.Returns(parseValue(*expect))
	}
	if *output != "" {
		x = x.Printing(strings.ReplaceAll(*output, `\n`, "\n"))
	}

	var callArgs []any
	for _, a := range fs.Args()[1:] {
		callArgs = append(callArgs, parseValue(a))
	}
	src := harness.File(absPath(fs.Arg(0))).WithEntry(ep, callArgs...).Expecting(x)

	v := h.Verify(src)
	if !v.Passed() {
		fmt.Fprintln(os.Stderr, v.Diagnostic)
		return 1
	}
	if r := v.Result; r != nil && r.Value != nil {
		fmt.Println(r.Value)
	}
	return 0
}

// handleCheckCommand processes the `tern check` subcommand: every file is
// compiled and linked, concurrently, and failures are reported.
func handleCheckCommand(m *manifest.Manifest, args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: check requires source files")
		return 2
	}
	h, err := newHarness(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	h.Stdout = nil

	srcs := make([]harness.SourceUnit, fs.NArg())
	for i, path := range fs.Args() {
		srcs[i] = harness.File(absPath(path)).Expecting(harness.CompileOnly())
	}
	verdicts, err := h.RunAll(context.Background(), srcs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	status := 0
	for i, v := range verdicts {
		if v.Passed() {
			fmt.Printf("ok   %s\n", fs.Arg(i))
			continue
		}
		status = 1
		fmt.Printf("FAIL %s\n", fs.Arg(i))
		fmt.Fprintln(os.Stderr, v.Reason)
	}
	return status
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// parseValue converts a command-line value to the most specific Go value:
// int, float64, bool or, failing those, string. Quoted text is always a
// string.
func parseValue(s string) any {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	return s
}
