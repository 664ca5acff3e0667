// Package symtable implements the two-scope name resolution described
// by the specification: a class-level table (Static, Field) and a
// subroutine-level table (Arg, Var), each assigning dense per-kind
// indices starting at 0.
package symtable

import (
	"github.com/libklein/jackc/internal/diag"
	"github.com/libklein/jackc/internal/token"
)

// Kind is the declared role of a symbol.
type Kind string

const (
	Static Kind = "static"
	Field  Kind = "field"
	Arg    Kind = "argument"
	Var    Kind = "local"
	None   Kind = ""
)

// Entry is one resolved name.
type Entry struct {
	Name string
	Type string
	Kind Kind
	Index token.Word
}

// Table holds one scope's worth of declarations, with a dense,
// per-kind index space.
type Table struct {
	entries map[string]Entry
	counts  map[Kind]token.Word
}

// New returns an empty table.
func New() *Table {
	return &Table{
		entries: make(map[string]Entry),
		counts:  make(map[Kind]token.Word),
	}
}

// Define inserts a new entry, assigning it the next index for its
// kind. Re-declaring a name already present in this table is a name
// error: the specification permits either last-write-wins or fatal
// treatment, and this implementation treats it as fatal so that a
// typo in a declaration never silently shadows an earlier one.
func (t *Table) Define(name, typ string, kind Kind) *diag.Diagnostic {
	if _, exists := t.entries[name]; exists {
		return diag.New(diag.NameError, 0, name, "a name not already declared in this scope")
	}
	idx := t.counts[kind]
	t.entries[name] = Entry{Name: name, Type: typ, Kind: kind, Index: idx}
	t.counts[kind] = idx + 1
	return nil
}

// VarCount returns the number of entries of the given kind.
func (t *Table) VarCount(kind Kind) token.Word {
	return t.counts[kind]
}

// Lookup returns the entry for name, and whether it was found.
func (t *Table) Lookup(name string) (Entry, bool) {
	e, ok := t.entries[name]
	return e, ok
}

// KindOf returns the kind of name, or None if undeclared.
func (t *Table) KindOf(name string) Kind {
	if e, ok := t.entries[name]; ok {
		return e.Kind
	}
	return None
}

// TypeOf returns the declared type of name, or "" if undeclared.
func (t *Table) TypeOf(name string) string {
	if e, ok := t.entries[name]; ok {
		return e.Type
	}
	return ""
}

// IndexOf returns the index of name, or -1 if undeclared.
func (t *Table) IndexOf(name string) int {
	if e, ok := t.entries[name]; ok {
		return int(e.Index)
	}
	return -1
}

// Contains reports whether name is declared in this table.
func (t *Table) Contains(name string) bool {
	_, ok := t.entries[name]
	return ok
}

// Reset discards all entries and counters, as done at the start of
// each class (class table) and each subroutine (subroutine table).
func (t *Table) Reset() {
	t.entries = make(map[string]Entry)
	t.counts = make(map[Kind]token.Word)
}

// Scopes bundles the class-level and subroutine-level tables that
// coexist for the duration of compiling one subroutine. Lookup order
// is subroutine table first, then class table, matching the
// specification's resolution rule.
type Scopes struct {
	Class      *Table
	Subroutine *Table
}

// NewScopes returns a pair of empty tables.
func NewScopes() *Scopes {
	return &Scopes{Class: New(), Subroutine: New()}
}

// Resolve looks up name in subroutine scope first, falling back to
// class scope. The bool reports whether either table had it.
func (s *Scopes) Resolve(name string) (Entry, bool) {
	if e, ok := s.Subroutine.Lookup(name); ok {
		return e, true
	}
	return s.Class.Lookup(name)
}
