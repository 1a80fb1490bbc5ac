package vm

import (
	"fmt"
	"strings"
)

// Thrown is a language-level exception escaping the invoked code: an
// exception object raised by THROW (or by a native method on its behalf)
// that no handler caught.
type Thrown struct {
	Exception *Object
	Trace     []string
}

func (t *Thrown) Error() string {
	if msg := t.Message(); msg != "" {
		return t.Exception.Class.Name + ": " + msg
	}
	return t.Exception.Class.Name
}

// Message returns the exception message, or "".
func (t *Thrown) Message() string {
	if v, ok := t.Exception.Field("message"); ok {
		if s, ok := v.(*String); ok && s != nil {
			return s.String()
		}
	}
	return ""
}

// ClassName returns the class of the thrown exception.
func (t *Thrown) ClassName() string { return t.Exception.Class.Name }

// HostError is a failure raised by the VM itself while running otherwise
// well-linked code: arithmetic faults, bounds violations, null receivers,
// stack exhaustion and values of the wrong kind. Generated code cannot
// catch it.
type HostError struct {
	Kind    string
	Message string
	Trace   []string
}

func (e *HostError) Error() string {
	if e.Message == "" {
		return e.Kind
	}
	return e.Kind + ": " + e.Message
}

func hostErrorf(kind, format string, args ...any) *HostError {
	return &HostError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Kinds of host errors.
const (
	ArithmeticError  = "ArithmeticException"
	IndexError       = "IndexOutOfBoundsException"
	NullError        = "NullPointerException"
	StackOverflow    = "StackOverflowError"
	VerifyError      = "VerifyError"
	InstantiateError = "InstantiationError"
)

// LinkError reports a class or member the running code refers to but that
// cannot be resolved. It signals a mismatch between generated code and the
// classes visible to the resolver, never an outcome of the program.
type LinkError struct {
	Kind   string
	Class  string
	Member string
	Err    error
}

func (e *LinkError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind)
	sb.WriteString(": ")
	sb.WriteString(e.Class)
	if e.Member != "" {
		sb.WriteString(".")
		sb.WriteString(e.Member)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *LinkError) Unwrap() error { return e.Err }

// Kinds of link errors.
const (
	NoClassDef        = "NoClassDefFoundError"
	NoSuchMethod      = "NoSuchMethodError"
	NoSuchField       = "NoSuchFieldError"
	UnsatisfiedLink   = "UnsatisfiedLinkError"
	IncompatibleClass = "IncompatibleClassChangeError"
)

// withFrame appends a stack frame description to traceable errors.
func withFrame(err error, frame string) error {
	switch e := err.(type) {
	case *Thrown:
		e.Trace = append(e.Trace, frame)
	case *HostError:
		e.Trace = append(e.Trace, frame)
	}
	return err
}
