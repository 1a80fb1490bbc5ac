package harness

import (
	"errors"
	"fmt"

	"github.com/chazu/tern/classpath"
	"github.com/chazu/tern/unit"
)

// Backend turns source text into classes. It must put nothing into out
// unless the whole text compiles.
type Backend interface {
	ParseAndGenerate(name, text string, classpath []string, out *unit.Store) error
}

// Diagnoser is implemented by backend errors that carry front-end
// diagnostics. Such errors become *CompileError.
type Diagnoser interface {
	Messages() []string
}

// Locator finds the runtime library artifact.
type Locator interface {
	Locate() (string, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func() (string, error)

func (f LocatorFunc) Locate() (string, error) { return f() }

// Orchestrator compiles source units into sealed bytecode units.
type Orchestrator struct {
	Backend Backend
	// Locator supplies the runtime artifact for EnsureRuntime. A nil
	// Locator disables injection.
	Locator Locator
	// Root is the resource root file sources are read from.
	Root string
}

// EnsureRuntime appends the runtime artifact to cp unless it is already
// present.
func (o *Orchestrator) EnsureRuntime(cp *classpath.Config) error {
	if o.Locator == nil {
		return nil
	}
	path, err := o.Locator.Locate()
	if err != nil {
		return fmt.Errorf("ensure runtime: %w", err)
	}
	if cp.Contains(path) {
		return nil
	}
	if err := cp.Add(path); err != nil {
		return fmt.Errorf("ensure runtime: %w", err)
	}
	log.Debugf("added runtime %s to classpath", path)
	return nil
}

// Compile compiles src against cp. The runtime is injected first and cp is
// frozen for the compilation. On failure no unit is returned; front-end
// diagnostics are reported as *CompileError.
func (o *Orchestrator) Compile(src SourceUnit, cp *classpath.Config) (*unit.Store, error) {
	if o.Backend == nil {
		return nil, errors.New("orchestrator has no backend")
	}
	if err := o.EnsureRuntime(cp); err != nil {
		return nil, err
	}
	entries := cp.Freeze()

	text, err := src.Text(o.Root)
	if err != nil {
		return nil, err
	}

	store := unit.NewStore()
	if err := o.Backend.ParseAndGenerate(src.Name(), text, entries, store); err != nil {
		var d Diagnoser
		if errors.As(err, &d) {
			return nil, &CompileError{Source: src.Name(), Diagnostics: d.Messages(), Err: err}
		}
		return nil, fmt.Errorf("compile %s: %w", src.Name(), err)
	}
	store.Seal()
	log.Debugf("compiled %s into %d classes", src.Name(), store.Len())
	return store, nil
}
