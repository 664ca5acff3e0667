// Package vmwriter emits the VM's textual instruction stream, one
// line per operation, in the exact lowercase spellings the target VM
// expects.
package vmwriter

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/libklein/jackc/internal/token"
)

// Segment is one of the VM's eight addressable regions.
type Segment string

const (
	Constant Segment = "constant"
	Argument Segment = "argument"
	Local    Segment = "local"
	Static   Segment = "static"
	This     Segment = "this"
	That     Segment = "that"
	Pointer  Segment = "pointer"
	Temp     Segment = "temp"
)

// Op is one of the arithmetic/logical commands.
type Op string

const (
	Add Op = "add"
	Sub Op = "sub"
	Neg Op = "neg"
	Eq  Op = "eq"
	Gt  Op = "gt"
	Lt  Op = "lt"
	And Op = "and"
	Or  Op = "or"
	Not Op = "not"
)

// Writer emits one VM instruction per call, tracking enough state to
// verify (in strict mode) that every branch target it was asked to
// jump to was also defined as a label within the same function — the
// "balanced control flow" property from the specification's testable
// properties section.
type Writer struct {
	out    io.Writer
	strict bool

	defined    map[string]bool
	referenced map[string]bool
	err        error
}

// New wraps w. When strict is true, EndFunction reports an error if any
// goto/if-goto target within a function was never defined by a label.
func New(w io.Writer, strict bool) *Writer {
	return &Writer{out: w, strict: strict, defined: map[string]bool{}, referenced: map[string]bool{}}
}

func (w *Writer) emit(format string, args ...interface{}) {
	if w.err != nil {
		return
	}
	if _, err := fmt.Fprintf(w.out, format+"\n", args...); err != nil {
		w.err = errors.Wrap(err, "write VM instruction")
	}
}

// Err returns the first write error encountered, if any.
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) WritePush(seg Segment, i token.Word) { w.emit("push %s %d", seg, i) }
func (w *Writer) WritePop(seg Segment, i token.Word)  { w.emit("pop %s %d", seg, i) }

func (w *Writer) WriteArithmetic(op Op) { w.emit("%s", op) }

func (w *Writer) WriteLabel(label string) {
	w.defined[label] = true
	w.emit("label %s", label)
}

func (w *Writer) WriteGoto(label string) {
	w.referenced[label] = true
	w.emit("goto %s", label)
}

func (w *Writer) WriteIf(label string) {
	w.referenced[label] = true
	w.emit("if-goto %s", label)
}

func (w *Writer) WriteCall(name string, nArgs token.Word) { w.emit("call %s %d", name, nArgs) }

func (w *Writer) WriteFunction(name string, nLocals token.Word) {
	w.defined = map[string]bool{}
	w.referenced = map[string]bool{}
	w.emit("function %s %d", name, nLocals)
}

func (w *Writer) WriteReturn() { w.emit("return") }

// EndFunction checks the label/branch balance accumulated since the
// last WriteFunction call, when running in strict mode.
func (w *Writer) EndFunction() error {
	if !w.strict {
		return nil
	}
	for label := range w.referenced {
		if !w.defined[label] {
			return errors.Errorf("label %q referenced but never defined in this function", label)
		}
	}
	return nil
}
