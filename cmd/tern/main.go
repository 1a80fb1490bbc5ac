// Tern CLI - compiles tern programs and verifies their behavior
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/tern/compiler"
	"github.com/chazu/tern/harness"
	"github.com/chazu/tern/manifest"
	"github.com/chazu/tern/stdlib"
)

func main() {
	verbosity := flag.Int("v", 0, "Log verbosity (-4 silent, 0 notices, 1 info, 2 debug)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tern [options] <command> [arguments]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles tern sources and verifies what they do when run.\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run    compile a file and invoke its entry point\n")
		fmt.Fprintf(os.Stderr, "  check  compile and load files without running them\n")
		fmt.Fprintf(os.Stderr, "  dump   print the classes of a source file or artifact\n")
		fmt.Fprintf(os.Stderr, "  build  build the project in tern.toml into an artifact\n")
		fmt.Fprintf(os.Stderr, "  std    build or locate the runtime library\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tern run hello.tn                    # Run main() and print the result\n")
		fmt.Fprintf(os.Stderr, "  tern run -e sum -expect 6 sum.tn 1 5 # Check that sum(1, 5) returns 6\n")
		fmt.Fprintf(os.Stderr, "  tern check src/*.tn                  # Compile and link every file\n")
		fmt.Fprintf(os.Stderr, "  tern dump build/app.tlib             # Disassemble an artifact\n")
	}
	flag.Parse()

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fatalf("loading manifest: %v", err)
	}
	if m != nil {
		if err := m.ApplyEnv(); err != nil {
			fatalf("%v", err)
		}
		if !flagSet("v") {
			*verbosity = m.Run.Verbosity
		}
	}
	commonlog.Configure(*verbosity, nil)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "run":
		os.Exit(handleRunCommand(m, args))
	case "check":
		os.Exit(handleCheckCommand(m, args))
	case "dump":
		os.Exit(handleDumpCommand(m, args))
	case "build":
		os.Exit(handleBuildCommand(m, args))
	case "std":
		os.Exit(handleStdCommand(args))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// runtimeLocator returns the runtime pinned by the manifest, or the cached
// build of the embedded library.
func runtimeLocator(m *manifest.Manifest) harness.Locator {
	if m != nil && m.RuntimePath() != "" {
		path := m.RuntimePath()
		return harness.LocatorFunc(func() (string, error) { return path, nil })
	}
	return harness.LocatorFunc(stdlib.Locate)
}

// newHarness configures a harness from the manifest: resource root, extra
// classpath, resolved dependencies and host error policy.
func newHarness(m *manifest.Manifest) (*harness.Harness, error) {
	h := harness.New(compiler.Backend{}, runtimeLocator(m))
	h.Stdout = os.Stdout
	if m == nil {
		return h, nil
	}
	h.Orchestrator.Root = m.RootPath()

	policy, err := harness.ParseHostErrorPolicy(m.Run.HostErrors)
	if err != nil {
		return nil, err
	}
	h.HostErrors = policy

	runtime, err := h.Orchestrator.Locator.Locate()
	if err != nil {
		return nil, err
	}
	deps, err := manifest.NewResolver(m, runtime).Resolve()
	if err != nil {
		return nil, err
	}
	entries := append(m.ClasspathEntries(), manifest.DepClasspath(deps)...)
	for _, e := range entries {
		if err := h.Classpath.Add(e); err != nil {
			return nil, err
		}
	}
	return h, nil
}
