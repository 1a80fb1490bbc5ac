// Package harness compiles source units, loads the generated classes
// behind a layered resolver and checks the observed behavior of an entry
// point against an expectation.
//
// One verification runs through the stages Uncompiled, Compiled, Loaded and
// Invoked and ends in a Verdict. A failure at any stage ends the run with
// the verdict for that stage.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/tern/classfile"
	"github.com/chazu/tern/classpath"
	"github.com/chazu/tern/loader"
	"github.com/chazu/tern/unit"
	"github.com/chazu/tern/vm"
)

// Stage is how far a verification got.
type Stage int

const (
	Uncompiled Stage = iota
	Compiled
	Loaded
	Invoked
)

var stageNames = [...]string{"uncompiled", "compiled", "loaded", "invoked"}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// VerdictKind is the terminal outcome of a verification.
type VerdictKind int

const (
	Passed VerdictKind = iota
	CompileFailed
	LinkFailed
	RuntimeFailed
	// Mismatched means the program ran but its outcome differs from the
	// expectation.
	Mismatched
)

var verdictNames = [...]string{"passed", "compile failed", "link failed", "runtime failed", "mismatched"}

func (k VerdictKind) String() string {
	if int(k) < len(verdictNames) {
		return verdictNames[k]
	}
	return fmt.Sprintf("VerdictKind(%d)", int(k))
}

// Verdict is the result of verifying one source unit.
type Verdict struct {
	ID     string
	Source string
	Kind   VerdictKind
	Stage  Stage
	// Unit is the compiled unit, nil when compilation failed.
	Unit   *unit.Store
	Result *InvocationResult
	Err    error
	// Fatal is set when a host error was turned into a harness error.
	Fatal bool
	// Reason explains a failed verdict in one line.
	Reason string
	// Diagnostic is the rendered failure, including the generated code when
	// there is any. It is empty when the verdict passed.
	Diagnostic string
}

// Passed reports whether the verification succeeded.
func (v *Verdict) Passed() bool { return v.Kind == Passed }

func (v *Verdict) String() string {
	if v.Kind == Passed {
		return v.Source + ": passed"
	}
	return fmt.Sprintf("%s: %s at stage %s: %s", v.Source, v.Kind, v.Stage, v.Reason)
}

// Harness runs the full compile, load, invoke and compare cycle.
type Harness struct {
	Orchestrator *Orchestrator
	// Classpath is the base classpath. Every verification works on a clone.
	Classpath  *classpath.Config
	HostErrors HostErrorPolicy
	// Stdout also receives program output. Concurrent verifications
	// write to it one line at a time.
	Stdout   io.Writer
	MaxDepth int

	outMu sync.Mutex
}

// lockedWriter serializes writes of concurrent sessions to one writer.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (h *Harness) stdout() io.Writer {
	if h.Stdout == nil {
		return nil
	}
	return lockedWriter{mu: &h.outMu, w: h.Stdout}
}

// New creates a harness compiling with backend and injecting the runtime
// found by locator.
func New(backend Backend, locator Locator) *Harness {
	return &Harness{
		Orchestrator: &Orchestrator{Backend: backend, Locator: locator},
		Classpath:    &classpath.Config{},
	}
}

// Verify compiles src, loads it and checks its expectation.
func (h *Harness) Verify(src SourceUnit) *Verdict {
	v := &Verdict{ID: uuid.NewString(), Source: src.Name(), Stage: Uncompiled}
	log.Debugf("verdict %s: verifying %s", v.ID, v.Source)

	cp := &classpath.Config{}
	if h.Classpath != nil {
		cp = h.Classpath.Clone()
	}
	u, err := h.Orchestrator.Compile(src, cp)
	if err != nil {
		return h.fail(v, CompileFailed, err, err.Error())
	}
	v.Unit = u
	v.Stage = Compiled

	providers := make([]loader.Provider, 0, cp.Len()+1)
	for _, entry := range cp.Entries() {
		providers = append(providers, loader.NewArtifactProvider(entry))
	}
	providers = append(providers, vm.HostProvider())
	session := Load(u, ResolverConfig{
		Providers:  providers,
		HostErrors: h.HostErrors,
		Stdout:     h.stdout(),
		MaxDepth:   h.MaxDepth,
	})
	defer closeProviders(providers)

	expect := src.Expectation()
	if expect.Kind == ExpectCompile {
		if err := session.LinkAll(); err != nil {
			return h.fail(v, LinkFailed, err, err.Error())
		}
		v.Stage = Loaded
		return h.pass(v)
	}

	m, err := session.Resolve(src.Entry(), len(src.Args()))
	if err != nil {
		return h.fail(v, LinkFailed, err, err.Error())
	}
	v.Stage = Loaded

	res, err := session.Invoke(src.Entry(), src.Args()...)
	if err != nil {
		var pf *ProgramFailure
		if errors.As(err, &pf) {
			v.Stage = Invoked
			v.Fatal = pf.Fatal
			return h.fail(v, RuntimeFailed, err, pf.Failure.String())
		}
		return h.fail(v, LinkFailed, err, err.Error())
	}
	v.Stage = Invoked
	v.Result = res

	if reason := compare(expect, m.Return, res); reason != "" {
		kind := Mismatched
		if !res.Succeeded() && expect.Kind != ExpectFailure {
			kind = RuntimeFailed
		}
		return h.fail(v, kind, res.Err(), reason)
	}
	return h.pass(v)
}

func (h *Harness) pass(v *Verdict) *Verdict {
	v.Kind = Passed
	log.Debugf("verdict %s: %s passed", v.ID, v.Source)
	return v
}

func (h *Harness) fail(v *Verdict, kind VerdictKind, err error, reason string) *Verdict {
	v.Kind = kind
	v.Err = err
	v.Reason = reason
	v.Diagnostic = renderDiagnostic(v.String(), v.Unit)
	log.Infof("verdict %s: %s", v.ID, v)
	return v
}

// compare returns why res does not meet expect, or "".
func compare(expect Expectation, ret string, res *InvocationResult) string {
	switch expect.Kind {
	case ExpectNoThrow:
		if !res.Succeeded() {
			return "unexpected failure: " + res.Failure.String()
		}
	case ExpectValue:
		if !res.Succeeded() {
			return "unexpected failure: " + res.Failure.String()
		}
		want, ok := normalize(ret, expect.Value)
		if !ok {
			return fmt.Sprintf("expected value %T(%v) is not a %s", expect.Value, expect.Value, classfile.TypeName(ret))
		}
		if !reflect.DeepEqual(res.Value, want) {
			return fmt.Sprintf("returned %v, want %v", res.Value, want)
		}
	case ExpectFailure:
		if res.Succeeded() {
			return fmt.Sprintf("returned %v, want failure %s", res.Value, expect.Failure)
		}
		f := res.Failure
		if expect.Failure != "" && !f.Is(expect.Failure) {
			return fmt.Sprintf("failed with %s, want %s", f.Class, expect.Failure)
		}
		if !strings.Contains(f.Message, expect.Message) {
			return fmt.Sprintf("failure message %q does not contain %q", f.Message, expect.Message)
		}
	}
	if expect.Output != nil && res.Output != *expect.Output {
		return fmt.Sprintf("printed %q, want %q", res.Output, *expect.Output)
	}
	return ""
}

func closeProviders(providers []loader.Provider) {
	for _, p := range providers {
		if c, ok := p.(io.Closer); ok {
			c.Close()
		}
	}
}

// renderDiagnostic formats head followed by the disassembled unit.
func renderDiagnostic(head string, u *unit.Store) string {
	if u == nil {
		return head
	}
	var classes []*classfile.Class
	for name := range u.Names() {
		data, err := u.Get(name)
		if err != nil {
			continue
		}
		c, err := classfile.Unmarshal(data)
		if err != nil {
			continue
		}
		classes = append(classes, c)
	}
	return head + "\n\n" + classfile.UnitText(classes)
}

// BlackBox verifies src and fails tb with the diagnostic unless it passes.
// Passing runs print nothing.
func (h *Harness) BlackBox(tb testing.TB, src SourceUnit) *Verdict {
	tb.Helper()
	v := h.Verify(src)
	if !v.Passed() {
		tb.Fatalf("%s", v.Diagnostic)
	}
	return v
}

// RunAll verifies srcs concurrently, each with its own unit and resolver,
// and returns the verdicts in input order.
func (h *Harness) RunAll(ctx context.Context, srcs []SourceUnit) ([]*Verdict, error) {
	out := make([]*Verdict, len(srcs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, src := range srcs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = h.Verify(src)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
