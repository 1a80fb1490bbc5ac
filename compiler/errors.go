package compiler

import (
	"fmt"
	"strings"
)

// Diagnostic is one compile error with its source location.
type Diagnostic struct {
	File    string
	Pos     Position
	Message string
}

func (d Diagnostic) String() string {
	if d.Pos.Line == 0 {
		if d.File == "" {
			return d.Message
		}
		return d.File + ": " + d.Message
	}
	return fmt.Sprintf("%s:%d:%d: %s", d.File, d.Pos.Line, d.Pos.Column, d.Message)
}

// Error is returned when compilation fails. It carries every diagnostic
// found; no classes are produced.
type Error struct {
	Diagnostics []Diagnostic
}

func (e *Error) Error() string {
	switch len(e.Diagnostics) {
	case 0:
		return "compilation failed"
	case 1:
		return e.Diagnostics[0].String()
	}
	return fmt.Sprintf("%s (and %d more errors)", e.Diagnostics[0], len(e.Diagnostics)-1)
}

// Messages returns the diagnostics rendered one per line.
func (e *Error) Messages() []string {
	out := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		out[i] = d.String()
	}
	return out
}

// Report renders all diagnostics as a single block of text.
func (e *Error) Report() string {
	return strings.Join(e.Messages(), "\n")
}
