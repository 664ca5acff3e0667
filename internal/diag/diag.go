// Package diag defines the compiler's typed error taxonomy. Every
// fatal condition the pipeline can hit — lexical, syntax,
// name-resolution, I/O, or driver-level — is surfaced as a
// *Diagnostic so the CLI has exactly one place that formats an error
// for stderr and exactly one place that decides the exit code.
package diag

import (
	"fmt"

	"github.com/pkg/errors"
)

// Class identifies which of spec's five error categories a
// Diagnostic belongs to.
type Class string

const (
	LexicalError Class = "lexical error"
	SyntaxError  Class = "syntax error"
	NameError    Class = "name error"
	IOError      Class = "I/O error"
	DriverError  Class = "driver error"
)

// Diagnostic is a single, line-attributed compiler error. It wraps an
// underlying cause (via github.com/pkg/errors) so that verbose
// logging can print a stack trace without changing the single-line
// message the CLI writes to stderr on failure.
type Diagnostic struct {
	Class    Class
	Line     int
	Lexeme   string
	Expected string
	Cause    error
}

// New builds a Diagnostic with no wrapped cause.
func New(class Class, line int, lexeme, expected string) *Diagnostic {
	return &Diagnostic{Class: class, Line: line, Lexeme: lexeme, Expected: expected}
}

// Wrap builds a Diagnostic around an existing error, preserving its
// stack trace for %+v formatting.
func Wrap(cause error, class Class, line int, lexeme, expected string) *Diagnostic {
	return &Diagnostic{
		Class:    class,
		Line:     line,
		Lexeme:   lexeme,
		Expected: expected,
		Cause:    errors.WithStack(cause),
	}
}

func (d *Diagnostic) Error() string {
	if d.Expected == "" {
		return fmt.Sprintf("%s at line %d: got %q", d.Class, d.Line, d.Lexeme)
	}
	return fmt.Sprintf("%s at line %d: got %q, expected %s", d.Class, d.Line, d.Lexeme, d.Expected)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (d *Diagnostic) Unwrap() error {
	return d.Cause
}

// Format supports %+v, delegating to the wrapped cause's stack trace
// when present.
func (d *Diagnostic) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') && d.Cause != nil {
			fmt.Fprintf(s, "%s\n%+v", d.Error(), d.Cause)
			return
		}
		fmt.Fprint(s, d.Error())
	default:
		fmt.Fprint(s, d.Error())
	}
}
