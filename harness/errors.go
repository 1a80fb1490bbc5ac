package harness

import (
	"fmt"
	"strings"
)

// CompileError reports front-end diagnostics for a source unit. No unit is
// produced when it is returned.
type CompileError struct {
	Source      string
	Diagnostics []string
	Err         error
}

func (e *CompileError) Error() string {
	switch len(e.Diagnostics) {
	case 0:
		return fmt.Sprintf("compile %s: %v", e.Source, e.Err)
	case 1:
		return fmt.Sprintf("compile %s: %s", e.Source, e.Diagnostics[0])
	}
	return fmt.Sprintf("compile %s: %s (and %d more errors)", e.Source, e.Diagnostics[0], len(e.Diagnostics)-1)
}

func (e *CompileError) Unwrap() error { return e.Err }

// EntryPointNotFoundError reports an entry point that the compiled unit does
// not define, or defines more than once for the given arguments.
type EntryPointNotFoundError struct {
	Entry      EntryPoint
	Arity      int
	Candidates []string // matching methods when ambiguous
	Reason     string
}

func (e *EntryPointNotFoundError) Error() string {
	msg := fmt.Sprintf("entry point %s with %d arguments: %s", e.Entry, e.Arity, e.Reason)
	if len(e.Candidates) > 0 {
		msg += " (" + strings.Join(e.Candidates, ", ") + ")"
	}
	return msg
}

// Ambiguous reports whether more than one callable matched.
func (e *EntryPointNotFoundError) Ambiguous() bool { return len(e.Candidates) > 1 }

// ArgumentError reports a Go argument that cannot be passed as a parameter
// of the entry point.
type ArgumentError struct {
	Index int
	Desc  string
	Value any
	Err   error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %d: %v", e.Index, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// FailureKind classifies program failures.
type FailureKind int

const (
	// FailureThrown is a language exception that escaped the entry point.
	FailureThrown FailureKind = iota
	// FailureHost is an error raised by the virtual machine itself, such as
	// division by zero.
	FailureHost
)

func (k FailureKind) String() string {
	if k == FailureHost {
		return "host"
	}
	return "thrown"
}

// Failure describes how the invoked program failed.
type Failure struct {
	Kind FailureKind
	// Class is the exception class, or the host error kind.
	Class   string
	Message string
	Trace   []string
	// Supers are the superclasses of Class, nearest first.
	Supers []string
	Err    error
}

// Is reports whether the failure is of class or one of its subclasses.
func (f *Failure) Is(class string) bool {
	if f.Class == class {
		return true
	}
	for _, s := range f.Supers {
		if s == class {
			return true
		}
	}
	return false
}

func (f *Failure) String() string {
	var sb strings.Builder
	sb.WriteString(f.Class)
	if f.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(f.Message)
	}
	for _, fr := range f.Trace {
		sb.WriteString("\n\tat ")
		sb.WriteString(fr)
	}
	return sb.String()
}

// ProgramFailure is the error form of a program failure. It is returned by
// Runner.Run for host errors under HostErrorsFatal and by
// InvocationResult.Err.
type ProgramFailure struct {
	Entry   EntryPoint
	Failure *Failure
	// Fatal is set when policy turned the failure into a harness error.
	Fatal bool
}

func (e *ProgramFailure) Error() string {
	return fmt.Sprintf("%s failed: %s: %s", e.Entry, e.Failure.Kind, e.Failure.Class+messageSuffix(e.Failure.Message))
}

func (e *ProgramFailure) Unwrap() error { return e.Failure.Err }

func messageSuffix(msg string) string {
	if msg == "" {
		return ""
	}
	return ": " + msg
}
