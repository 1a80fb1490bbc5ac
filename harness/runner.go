package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/tern/classfile"
	"github.com/chazu/tern/loader"
	"github.com/chazu/tern/unit"
	"github.com/chazu/tern/vm"
)

var log = commonlog.GetLogger("tern.harness")

// HostErrorPolicy decides what happens to VM errors that escape the entry
// point, such as division by zero.
type HostErrorPolicy int

const (
	// HostErrorsAssertable reports host errors as program failures that
	// expectations can match.
	HostErrorsAssertable HostErrorPolicy = iota
	// HostErrorsFatal returns host errors from Run as *ProgramFailure with
	// Fatal set.
	HostErrorsFatal
)

func (p HostErrorPolicy) String() string {
	if p == HostErrorsFatal {
		return "fatal"
	}
	return "assertable"
}

// ParseHostErrorPolicy parses "assertable" or "fatal".
func ParseHostErrorPolicy(s string) (HostErrorPolicy, error) {
	switch s {
	case "", "assertable":
		return HostErrorsAssertable, nil
	case "fatal":
		return HostErrorsFatal, nil
	}
	return 0, fmt.Errorf("unknown host error policy %q", s)
}

// ResolverConfig configures the resolver and interpreter of one run.
type ResolverConfig struct {
	// Providers back the unit, in search order. The host provider is
	// normally last.
	Providers  []loader.Provider
	HostErrors HostErrorPolicy
	// Stdout also receives program output, which is always captured.
	Stdout   io.Writer
	MaxDepth int
}

// InvocationResult is the outcome of invoking an entry point: a value, or
// a failure when Failure is set.
type InvocationResult struct {
	Value   any
	Failure *Failure
	// Output is what the program printed during the invocation.
	Output string
	// Method is the invoked method, as class.name+desc.
	Method     string
	ResolverID string

	unit *unit.Store
}

// Succeeded reports whether the entry point returned normally.
func (r *InvocationResult) Succeeded() bool { return r.Failure == nil }

// Err returns the failure as a *ProgramFailure, or nil.
func (r *InvocationResult) Err() error {
	if r.Failure == nil {
		return nil
	}
	return &ProgramFailure{Entry: EntryPoint{Name: r.Method}, Failure: r.Failure}
}

// Diagnostic renders the failure together with the generated code. It is
// empty for successful results.
func (r *InvocationResult) Diagnostic() string {
	if r.Failure == nil {
		return ""
	}
	return renderDiagnostic(r.Method+": "+r.Failure.String(), r.unit)
}

// Runner invokes entry points of compiled units.
type Runner struct{}

// Run loads u behind cfg's providers, invokes entry with args and reports
// the outcome. Program failures are returned in the result; resolution and
// link failures are returned as errors.
func (Runner) Run(u *unit.Store, entry EntryPoint, args []any, cfg ResolverConfig) (*InvocationResult, error) {
	return Load(u, cfg).Invoke(entry, args...)
}

// Session is a unit loaded behind a fresh resolver and interpreter. It
// serves one caller at a time.
type Session struct {
	Resolver    *loader.Resolver
	Interpreter *vm.Interpreter

	unit *unit.Store
	cfg  ResolverConfig
	out  bytes.Buffer
}

// Load creates a session for u. Nothing is resolved until it is needed.
func Load(u *unit.Store, cfg ResolverConfig) *Session {
	s := &Session{unit: u, cfg: cfg}
	s.Resolver = loader.New(u, cfg.Providers...)
	s.Interpreter = vm.NewInterpreter(s.Resolver)
	s.Interpreter.MaxDepth = cfg.MaxDepth
	if cfg.Stdout != nil {
		s.Interpreter.Stdout = io.MultiWriter(&s.out, cfg.Stdout)
	} else {
		s.Interpreter.Stdout = &s.out
	}
	return s
}

// LinkAll links every class of the unit and checks that none of them was
// satisfied by a provider.
func (s *Session) LinkAll() error {
	for name := range s.unit.Names() {
		if _, err := s.Interpreter.LinkClass(name); err != nil {
			return err
		}
	}
	return s.Resolver.CheckShadowing()
}

// Resolve finds the static method entry names. Without a class every
// top-level function facade of the unit is searched. Without a name the
// unit must declare exactly one top-level function, which is the entry.
func (s *Session) Resolve(entry EntryPoint, arity int) (*vm.Method, error) {
	if entry.IsZero() {
		return s.resolveSole(entry, arity)
	}
	classes := []string{entry.Class}
	if entry.Class == "" {
		classes = classes[:0]
		for name := range s.unit.Names() {
			if classfile.SimpleName(name) == classfile.FacadeName {
				classes = append(classes, name)
			}
		}
		if len(classes) == 0 {
			return nil, &EntryPointNotFoundError{Entry: entry, Arity: arity, Reason: "unit has no top-level functions"}
		}
	}

	var found []*vm.Method
	for _, name := range classes {
		c, err := s.Interpreter.LinkClass(name)
		var le *vm.LinkError
		if entry.Class != "" && errors.As(err, &le) && le.Class == name && errors.Is(err, loader.ErrNotFound) {
			return nil, &EntryPointNotFoundError{Entry: entry, Arity: arity, Reason: "class not found"}
		}
		if err != nil {
			return nil, err
		}
		for _, m := range c.MethodsNamed(entry.Name) {
			if !m.IsStatic() {
				continue
			}
			if entry.Desc != "" && m.Desc() != entry.Desc {
				continue
			}
			if entry.Desc == "" && len(m.Params) != arity {
				continue
			}
			found = append(found, m)
		}
	}
	return pick(entry, arity, found, "no matching function")
}

// resolveSole returns the only top-level function of the unit.
func (s *Session) resolveSole(entry EntryPoint, arity int) (*vm.Method, error) {
	var found []*vm.Method
	for name := range s.unit.Names() {
		if classfile.SimpleName(name) != classfile.FacadeName {
			continue
		}
		c, err := s.Interpreter.LinkClass(name)
		if err != nil {
			return nil, err
		}
		for _, info := range c.File.Methods {
			if m := c.DeclaredMethod(info.Name, info.Desc); m != nil && m.IsStatic() && !strings.HasPrefix(info.Name, "<") {
				found = append(found, m)
			}
		}
	}
	return pick(entry, arity, found, "no entry point designated and the unit has no top-level functions")
}

// pick returns the single candidate taking arity arguments.
func pick(entry EntryPoint, arity int, found []*vm.Method, none string) (*vm.Method, error) {
	switch len(found) {
	case 0:
		return nil, &EntryPointNotFoundError{Entry: entry, Arity: arity, Reason: none}
	case 1:
		if len(found[0].Params) != arity {
			return nil, &EntryPointNotFoundError{Entry: entry, Arity: arity, Reason: "descriptor takes " + fmt.Sprint(len(found[0].Params)) + " arguments"}
		}
		return found[0], nil
	}
	names := make([]string, len(found))
	for i, m := range found {
		names[i] = m.String()
	}
	slices.Sort(names)
	return nil, &EntryPointNotFoundError{Entry: entry, Arity: arity, Candidates: names, Reason: "ambiguous"}
}

// Invoke resolves entry, marshals args and calls it.
func (s *Session) Invoke(entry EntryPoint, args ...any) (*InvocationResult, error) {
	m, err := s.Resolve(entry, len(args))
	if err != nil {
		return nil, err
	}
	vals, err := marshalArgs(m, args)
	if err != nil {
		return nil, err
	}

	start := s.out.Len()
	ret, err := s.Interpreter.Invoke(m, vals...)
	res := &InvocationResult{
		Output:     s.out.String()[start:],
		Method:     m.String(),
		ResolverID: s.Resolver.ID(),
		unit:       s.unit,
	}
	log.Debugf("resolver %s: invoked %s", res.ResolverID, res.Method)
	if err == nil {
		res.Value = unmarshal(m.Return, ret)
		return res, nil
	}

	var thrown *vm.Thrown
	var host *vm.HostError
	switch {
	case errors.As(err, &thrown):
		res.Failure = &Failure{
			Kind:    FailureThrown,
			Class:   thrown.ClassName(),
			Message: thrown.Message(),
			Trace:   slices.Clone(thrown.Trace),
			Err:     err,
		}
		for k := thrown.Exception.Class.Super; k != nil; k = k.Super {
			res.Failure.Supers = append(res.Failure.Supers, k.Name)
		}
	case errors.As(err, &host):
		f := &Failure{
			Kind:    FailureHost,
			Class:   host.Kind,
			Message: host.Message,
			Trace:   slices.Clone(host.Trace),
			Err:     err,
		}
		if s.cfg.HostErrors == HostErrorsFatal {
			return nil, &ProgramFailure{Entry: entry, Failure: f, Fatal: true}
		}
		res.Failure = f
	default:
		return nil, err
	}
	log.Debugf("resolver %s: %s failed: %s", res.ResolverID, res.Method, res.Failure.Class)
	return res, nil
}
