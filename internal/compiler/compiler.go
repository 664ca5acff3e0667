// Package compiler implements the single-pass recursive-descent
// parser and code generator: it drives a lexer.Lexer token by token,
// populates a symtable.Scopes pair as declarations are seen, and
// emits VM instructions through a vmwriter.Writer as each syntactic
// construct is recognized. There is no intermediate AST — parsing and
// codegen happen in the same pass, exactly as the specification
// requires.
package compiler

import (
	"fmt"

	"github.com/libklein/jackc/internal/diag"
	"github.com/libklein/jackc/internal/symtable"
	"github.com/libklein/jackc/internal/token"
	"github.com/libklein/jackc/internal/vmwriter"
)

// TokenSource is the subset of *lexer.Lexer the compiler depends on,
// kept as an interface so tests can feed it canned token sequences.
type TokenSource interface {
	Scan() bool
	Token() token.Token
	Err() error
	Line() int
}

// Emitter is the subset of *vmwriter.Writer the compiler depends on.
type Emitter interface {
	WritePush(vmwriter.Segment, token.Word)
	WritePop(vmwriter.Segment, token.Word)
	WriteArithmetic(vmwriter.Op)
	WriteLabel(string)
	WriteGoto(string)
	WriteIf(string)
	WriteCall(string, token.Word)
	WriteFunction(string, token.Word)
	WriteReturn()
	EndFunction() error
}

type subroutineKind string

const (
	subConstructor subroutineKind = "constructor"
	subFunction    subroutineKind = "function"
	subMethod      subroutineKind = "method"
)

// Compiler is a single-use, single-threaded compilation engine for
// exactly one source file / one class. It is not safe to reuse or
// share across goroutines; the driver constructs one per input file.
type Compiler struct {
	lex TokenSource
	out Emitter

	scopes *symtable.Scopes

	className         string
	curSubroutineKind subroutineKind

	ifCounter    int
	whileCounter int

	cur token.Token
}

// New constructs a Compiler reading tokens from lex and writing VM
// instructions through out.
func New(lex TokenSource, out Emitter) *Compiler {
	return &Compiler{lex: lex, out: out, scopes: symtable.NewScopes()}
}

// Compile parses and emits exactly one class, matching expectedClassName
// to the class declared in the source (the driver's file-name rule).
// It returns the first diagnostic encountered, or nil on success.
func (c *Compiler) Compile(expectedClassName string) (err error) {
	if err := c.advance(); err != nil {
		return err
	}
	if err := c.compileClass(); err != nil {
		return err
	}
	if c.className != expectedClassName {
		return diag.New(diag.DriverError, c.cur.Line, c.className,
			fmt.Sprintf("class name matching file base name %q", expectedClassName))
	}
	return nil
}

func (c *Compiler) advance() error {
	if c.lex.Scan() {
		c.cur = c.lex.Token()
		return nil
	}
	if err := c.lex.Err(); err != nil {
		return err
	}
	return diag.New(diag.SyntaxError, c.lex.Line(), "", "more input (reached end of file)")
}

// consume checks the current token against each expected terminal in
// turn, advancing past it, and fails on the first mismatch.
func (c *Compiler) consume(expected ...string) error {
	for _, want := range expected {
		if !c.cur.Is(want) {
			return diag.New(diag.SyntaxError, c.cur.Line, c.cur.Literal, fmt.Sprintf("%q", want))
		}
		if err := c.advance(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) expectIdentifier() (string, error) {
	if c.cur.Kind != token.Identifier {
		return "", diag.New(diag.SyntaxError, c.cur.Line, c.cur.Literal, "identifier")
	}
	name := c.cur.Literal
	return name, c.advance()
}

func (c *Compiler) expectType() (string, error) {
	if c.cur.IsKeyword(token.Int) || c.cur.IsKeyword(token.Char) || c.cur.IsKeyword(token.Boolean) {
		typ := c.cur.Literal
		return typ, c.advance()
	}
	return c.expectIdentifier()
}

// --- class ---

func (c *Compiler) compileClass() error {
	if err := c.consume("class"); err != nil {
		return err
	}
	c.scopes.Class.Reset()

	name, err := c.expectIdentifier()
	if err != nil {
		return err
	}
	c.className = name

	if err := c.consume("{"); err != nil {
		return err
	}

	for c.cur.IsKeyword(token.Static) || c.cur.IsKeyword(token.Field) {
		if err := c.compileClassVarDec(); err != nil {
			return err
		}
	}
	for c.isSubroutineStart() {
		if err := c.compileSubroutineDec(); err != nil {
			return err
		}
	}

	// The class's closing brace must also be the end of the file: a
	// source file holds exactly one class. Unlike every other "}" in
	// the grammar, reaching EOF right here is success, not a syntax
	// error, so this can't be expressed with the ordinary consume
	// helper (which always expects a following token).
	if !c.cur.Is("}") {
		return diag.New(diag.SyntaxError, c.cur.Line, c.cur.Literal, `"}"`)
	}
	if c.lex.Scan() {
		trailing := c.lex.Token()
		return diag.New(diag.SyntaxError, trailing.Line, trailing.Literal, "end of file after class body")
	}
	return c.lex.Err()
}

func (c *Compiler) isSubroutineStart() bool {
	return c.cur.IsKeyword(token.Constructor) || c.cur.IsKeyword(token.Function) || c.cur.IsKeyword(token.Method)
}

func (c *Compiler) compileClassVarDec() error {
	var kind symtable.Kind
	switch {
	case c.cur.IsKeyword(token.Static):
		kind = symtable.Static
	case c.cur.IsKeyword(token.Field):
		kind = symtable.Field
	default:
		return diag.New(diag.SyntaxError, c.cur.Line, c.cur.Literal, `"static" or "field"`)
	}
	if err := c.advance(); err != nil {
		return err
	}
	return c.compileVarSequence(c.scopes.Class, kind)
}

// compileVarSequence parses "type name (, name)* ;" and declares each
// name in table under kind.
func (c *Compiler) compileVarSequence(table *symtable.Table, kind symtable.Kind) error {
	typ, err := c.expectType()
	if err != nil {
		return err
	}
	for {
		name, err := c.expectIdentifier()
		if err != nil {
			return err
		}
		if d := table.Define(name, typ, kind); d != nil {
			d.Line = c.cur.Line
			return d
		}
		if c.cur.Is(",") {
			if err := c.advance(); err != nil {
				return err
			}
			continue
		}
		break
	}
	return c.consume(";")
}

// --- subroutines ---

func (c *Compiler) compileSubroutineDec() error {
	c.scopes.Subroutine.Reset()

	kind := subroutineKind(c.cur.Literal)
	c.curSubroutineKind = kind
	if err := c.advance(); err != nil {
		return err
	}

	// return type: void or a type, not recorded (types aren't checked).
	if !c.cur.IsKeyword(token.Void) {
		if _, err := c.expectType(); err != nil {
			return err
		}
	} else if err := c.advance(); err != nil {
		return err
	}

	name, err := c.expectIdentifier()
	if err != nil {
		return err
	}

	if kind == subMethod {
		if d := c.scopes.Subroutine.Define("this", c.className, symtable.Arg); d != nil {
			return d
		}
	}

	if err := c.consume("("); err != nil {
		return err
	}
	if !c.cur.Is(")") {
		if err := c.compileParameterList(); err != nil {
			return err
		}
	}
	if err := c.consume(")"); err != nil {
		return err
	}

	return c.compileSubroutineBody(name, kind)
}

func (c *Compiler) compileParameterList() error {
	for {
		typ, err := c.expectType()
		if err != nil {
			return err
		}
		name, err := c.expectIdentifier()
		if err != nil {
			return err
		}
		if d := c.scopes.Subroutine.Define(name, typ, symtable.Arg); d != nil {
			d.Line = c.cur.Line
			return d
		}
		if c.cur.Is(",") {
			if err := c.advance(); err != nil {
				return err
			}
			continue
		}
		break
	}
	return nil
}

func (c *Compiler) compileSubroutineBody(name string, kind subroutineKind) error {
	if err := c.consume("{"); err != nil {
		return err
	}

	for c.cur.IsKeyword(token.Var) {
		if err := c.advance(); err != nil {
			return err
		}
		if err := c.compileVarSequence(c.scopes.Subroutine, symtable.Var); err != nil {
			return err
		}
	}

	nLocals := c.scopes.Subroutine.VarCount(symtable.Var)
	c.out.WriteFunction(c.className+"."+name, nLocals)

	switch kind {
	case subConstructor:
		nFields := c.scopes.Class.VarCount(symtable.Field)
		c.out.WritePush(vmwriter.Constant, nFields)
		c.out.WriteCall("Memory.alloc", 1)
		c.out.WritePop(vmwriter.Pointer, 0)
	case subMethod:
		c.out.WritePush(vmwriter.Argument, 0)
		c.out.WritePop(vmwriter.Pointer, 0)
	}

	c.ifCounter = 0
	c.whileCounter = 0

	if err := c.compileStatements(); err != nil {
		return err
	}
	if err := c.out.EndFunction(); err != nil {
		return diag.Wrap(err, diag.SyntaxError, c.cur.Line, name, "balanced control-flow labels")
	}
	return c.consume("}")
}

// --- statements ---

func (c *Compiler) compileStatements() error {
	for {
		switch {
		case c.cur.IsKeyword(token.Let):
			if err := c.compileLet(); err != nil {
				return err
			}
		case c.cur.IsKeyword(token.If):
			if err := c.compileIf(); err != nil {
				return err
			}
		case c.cur.IsKeyword(token.While):
			if err := c.compileWhile(); err != nil {
				return err
			}
		case c.cur.IsKeyword(token.Do):
			if err := c.compileDo(); err != nil {
				return err
			}
		case c.cur.IsKeyword(token.Return):
			if err := c.compileReturn(); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (c *Compiler) compileLet() error {
	if err := c.consume("let"); err != nil {
		return err
	}
	name, err := c.expectIdentifier()
	if err != nil {
		return err
	}

	isArray := false
	if c.cur.Is("[") {
		isArray = true
		if err := c.advance(); err != nil {
			return err
		}
		segment, index, err := c.resolveVariable(name)
		if err != nil {
			return err
		}
		c.out.WritePush(segment, index)
		if err := c.compileExpression(); err != nil {
			return err
		}
		if err := c.consume("]"); err != nil {
			return err
		}
		c.out.WriteArithmetic(vmwriter.Add)
	}

	if err := c.consume("="); err != nil {
		return err
	}
	if err := c.compileExpression(); err != nil {
		return err
	}
	if err := c.consume(";"); err != nil {
		return err
	}

	if isArray {
		c.out.WritePop(vmwriter.Temp, 0)
		c.out.WritePop(vmwriter.Pointer, 1)
		c.out.WritePush(vmwriter.Temp, 0)
		c.out.WritePop(vmwriter.That, 0)
		return nil
	}

	segment, index, err := c.resolveVariable(name)
	if err != nil {
		return err
	}
	c.out.WritePop(segment, index)
	return nil
}

func (c *Compiler) compileIf() error {
	if err := c.consume("if", "("); err != nil {
		return err
	}
	n := c.ifCounter
	c.ifCounter++

	if err := c.compileExpression(); err != nil {
		return err
	}
	if err := c.consume(")", "{"); err != nil {
		return err
	}

	trueLabel := fmt.Sprintf("IF_TRUE%d", n)
	falseLabel := fmt.Sprintf("IF_FALSE%d", n)

	c.out.WriteIf(trueLabel)
	c.out.WriteGoto(falseLabel)
	c.out.WriteLabel(trueLabel)

	if err := c.compileStatements(); err != nil {
		return err
	}
	if err := c.consume("}"); err != nil {
		return err
	}

	if c.cur.IsKeyword(token.Else) {
		endLabel := fmt.Sprintf("IF_END%d", n)
		c.out.WriteGoto(endLabel)
		c.out.WriteLabel(falseLabel)
		if err := c.consume("else", "{"); err != nil {
			return err
		}
		if err := c.compileStatements(); err != nil {
			return err
		}
		if err := c.consume("}"); err != nil {
			return err
		}
		c.out.WriteLabel(endLabel)
		return nil
	}

	c.out.WriteLabel(falseLabel)
	return nil
}

func (c *Compiler) compileWhile() error {
	if err := c.consume("while", "("); err != nil {
		return err
	}
	n := c.whileCounter
	c.whileCounter++

	expLabel := fmt.Sprintf("WHILE_EXP%d", n)
	endLabel := fmt.Sprintf("WHILE_END%d", n)

	c.out.WriteLabel(expLabel)
	if err := c.compileExpression(); err != nil {
		return err
	}
	c.out.WriteArithmetic(vmwriter.Not)
	c.out.WriteIf(endLabel)

	if err := c.consume(")", "{"); err != nil {
		return err
	}
	if err := c.compileStatements(); err != nil {
		return err
	}
	if err := c.consume("}"); err != nil {
		return err
	}

	c.out.WriteGoto(expLabel)
	c.out.WriteLabel(endLabel)
	return nil
}

func (c *Compiler) compileDo() error {
	if err := c.consume("do"); err != nil {
		return err
	}
	name, err := c.expectIdentifier()
	if err != nil {
		return err
	}
	if err := c.compileSubroutineCall(name); err != nil {
		return err
	}
	c.out.WritePop(vmwriter.Temp, 0)
	return c.consume(";")
}

func (c *Compiler) compileReturn() error {
	if err := c.consume("return"); err != nil {
		return err
	}
	if c.cur.Is(";") {
		c.out.WritePush(vmwriter.Constant, 0)
	} else {
		if err := c.compileExpression(); err != nil {
			return err
		}
	}
	c.out.WriteReturn()
	return c.consume(";")
}

// --- expressions ---

var binaryOps = map[string]vmwriter.Op{
	"+": vmwriter.Add, "-": vmwriter.Sub, "&": vmwriter.And, "|": vmwriter.Or,
	"<": vmwriter.Lt, ">": vmwriter.Gt, "=": vmwriter.Eq,
}

func isBinaryOpLiteral(lit string) bool {
	switch lit {
	case "+", "-", "*", "/", "&", "|", "<", ">", "=":
		return true
	}
	return false
}

// compileExpression emits term (op term)* left-associative and
// without precedence: each operator is emitted immediately after its
// right operand, postorder, per the specification's explicit
// operator-grouping rule.
func (c *Compiler) compileExpression() error {
	if err := c.compileTerm(); err != nil {
		return err
	}
	for c.cur.Kind == token.Symbol && isBinaryOpLiteral(c.cur.Literal) {
		opLit := c.cur.Literal
		if err := c.advance(); err != nil {
			return err
		}
		if err := c.compileTerm(); err != nil {
			return err
		}
		switch opLit {
		case "*":
			c.out.WriteCall("Math.multiply", 2)
		case "/":
			c.out.WriteCall("Math.divide", 2)
		default:
			c.out.WriteArithmetic(binaryOps[opLit])
		}
	}
	return nil
}

// compileExpressionList parses "(expr (, expr)*)?" and returns the
// count of expressions compiled.
func (c *Compiler) compileExpressionList() (token.Word, error) {
	if c.cur.Is(")") {
		return 0, nil
	}
	var n token.Word
	for {
		if err := c.compileExpression(); err != nil {
			return 0, err
		}
		n++
		if c.cur.Is(",") {
			if err := c.advance(); err != nil {
				return 0, err
			}
			continue
		}
		break
	}
	return n, nil
}

func (c *Compiler) compileTerm() error {
	switch {
	case c.cur.Kind == token.IntegerConstant:
		v, err := c.cur.IntValue()
		if err != nil {
			return diag.Wrap(err, diag.LexicalError, c.cur.Line, c.cur.Literal, "integer constant")
		}
		c.out.WritePush(vmwriter.Constant, v)
		return c.advance()

	case c.cur.Kind == token.StringConstant:
		return c.compileStringConstant()

	case c.cur.IsKeyword(token.True):
		c.out.WritePush(vmwriter.Constant, 0)
		c.out.WriteArithmetic(vmwriter.Not)
		return c.advance()
	case c.cur.IsKeyword(token.False), c.cur.IsKeyword(token.Null):
		c.out.WritePush(vmwriter.Constant, 0)
		return c.advance()
	case c.cur.IsKeyword(token.This):
		if c.curSubroutineKind == subFunction {
			return diag.New(diag.NameError, c.cur.Line, "this", "method or constructor context")
		}
		c.out.WritePush(vmwriter.Pointer, 0)
		return c.advance()

	case c.cur.Is("("):
		if err := c.advance(); err != nil {
			return err
		}
		if err := c.compileExpression(); err != nil {
			return err
		}
		return c.consume(")")

	case c.cur.Is("-"):
		if err := c.advance(); err != nil {
			return err
		}
		if err := c.compileTerm(); err != nil {
			return err
		}
		c.out.WriteArithmetic(vmwriter.Neg)
		return nil
	case c.cur.Is("~"):
		if err := c.advance(); err != nil {
			return err
		}
		if err := c.compileTerm(); err != nil {
			return err
		}
		c.out.WriteArithmetic(vmwriter.Not)
		return nil

	case c.cur.Kind == token.Identifier:
		return c.compileIdentifierTerm()

	default:
		return diag.New(diag.SyntaxError, c.cur.Line, c.cur.Literal, "term")
	}
}

func (c *Compiler) compileStringConstant() error {
	s := c.cur.Literal
	c.out.WritePush(vmwriter.Constant, token.Word(len(s)))
	c.out.WriteCall("String.new", 1)
	for _, ch := range s {
		c.out.WritePush(vmwriter.Constant, token.Word(ch))
		c.out.WriteCall("String.appendChar", 2)
	}
	return c.advance()
}

// compileIdentifierTerm handles the three term forms that start with
// an identifier: a bare variable, an array access, and a subroutine
// call (both unqualified and qualified).
func (c *Compiler) compileIdentifierTerm() error {
	name, err := c.expectIdentifier()
	if err != nil {
		return err
	}

	switch {
	case c.cur.Is("["):
		if err := c.advance(); err != nil {
			return err
		}
		segment, index, err := c.resolveVariable(name)
		if err != nil {
			return err
		}
		c.out.WritePush(segment, index)
		if err := c.compileExpression(); err != nil {
			return err
		}
		if err := c.consume("]"); err != nil {
			return err
		}
		c.out.WriteArithmetic(vmwriter.Add)
		c.out.WritePop(vmwriter.Pointer, 1)
		c.out.WritePush(vmwriter.That, 0)
		return nil

	case c.cur.Is("(") || c.cur.Is("."):
		return c.compileSubroutineCall(name)

	default:
		segment, index, err := c.resolveVariable(name)
		if err != nil {
			return err
		}
		c.out.WritePush(segment, index)
		return nil
	}
}

// compileSubroutineCall handles the three call-resolution cases from
// the specification: an unqualified method call on the current
// object, a qualified call on a declared variable (a method call),
// and a qualified call on an undeclared name (a static function or
// constructor call).
func (c *Compiler) compileSubroutineCall(name string) error {
	if c.cur.Is(".") {
		if err := c.advance(); err != nil {
			return err
		}
		methodName, err := c.expectIdentifier()
		if err != nil {
			return err
		}

		var target string
		var nArgs token.Word
		if entry, ok := c.scopes.Resolve(name); ok {
			segment, index, rerr := c.resolveVariable(name)
			if rerr != nil {
				return rerr
			}
			c.out.WritePush(segment, index)
			nArgs = 1
			target = entry.Type + "." + methodName
		} else {
			target = name + "." + methodName
		}

		if err := c.consume("("); err != nil {
			return err
		}
		listArgs, err := c.compileExpressionList()
		if err != nil {
			return err
		}
		if err := c.consume(")"); err != nil {
			return err
		}
		c.out.WriteCall(target, nArgs+listArgs)
		return nil
	}

	if c.cur.Is("(") {
		c.out.WritePush(vmwriter.Pointer, 0)
		if err := c.advance(); err != nil {
			return err
		}
		listArgs, err := c.compileExpressionList()
		if err != nil {
			return err
		}
		if err := c.consume(")"); err != nil {
			return err
		}
		c.out.WriteCall(c.className+"."+name, 1+listArgs)
		return nil
	}

	return diag.New(diag.SyntaxError, c.cur.Line, c.cur.Literal, `"(" or "."`)
}

// resolveVariable maps a declared name to its VM segment and index,
// per the kind→segment table in the specification.
func (c *Compiler) resolveVariable(name string) (vmwriter.Segment, token.Word, error) {
	entry, ok := c.scopes.Resolve(name)
	if !ok {
		return "", 0, diag.New(diag.NameError, c.cur.Line, name, "a declared variable")
	}
	switch entry.Kind {
	case symtable.Static:
		return vmwriter.Static, entry.Index, nil
	case symtable.Field:
		return vmwriter.This, entry.Index, nil
	case symtable.Arg:
		return vmwriter.Argument, entry.Index, nil
	case symtable.Var:
		return vmwriter.Local, entry.Index, nil
	default:
		return "", 0, diag.New(diag.NameError, c.cur.Line, name, "a variable with a known kind")
	}
}
