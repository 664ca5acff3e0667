package lexer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libklein/jackc/internal/diag"
	"github.com/libklein/jackc/internal/token"
)

func scanAll(t *testing.T, src string) []token.Token {
	t.Helper()
	l := New(strings.NewReader(src))
	var toks []token.Token
	for l.Scan() {
		toks = append(toks, l.Token())
	}
	require.NoError(t, l.Err())
	return toks
}

func TestScanKeywordsSymbolsAndIdentifiers(t *testing.T) {
	toks := scanAll(t, "class Foo { field int x; }")
	require.Len(t, toks, 8)
	assert.Equal(t, token.Token{Kind: token.Keyword, Literal: "class", Line: 1}, toks[0])
	assert.Equal(t, token.Token{Kind: token.Identifier, Literal: "Foo", Line: 1}, toks[1])
	assert.Equal(t, token.Token{Kind: token.Symbol, Literal: "{", Line: 1}, toks[2])
	assert.Equal(t, token.Token{Kind: token.Keyword, Literal: "field", Line: 1}, toks[3])
	assert.Equal(t, token.Token{Kind: token.Keyword, Literal: "int", Line: 1}, toks[4])
	assert.Equal(t, token.Token{Kind: token.Identifier, Literal: "x", Line: 1}, toks[5])
	assert.Equal(t, token.Token{Kind: token.Symbol, Literal: ";", Line: 1}, toks[6])
	assert.Equal(t, token.Token{Kind: token.Symbol, Literal: "}", Line: 1}, toks[7])
}

func TestLineCommentsAndBlockComments(t *testing.T) {
	src := "let x = 1; // trailing comment\n/* a block\n   comment */let y = 2;"
	toks := scanAll(t, src)
	var lets int
	for _, tk := range toks {
		if tk.IsKeyword(token.Let) {
			lets++
		}
	}
	assert.Equal(t, 2, lets)
	// "y" should be on line 3, after the two newlines consumed inside
	// the line comment and the block comment.
	for _, tk := range toks {
		if tk.Literal == "y" {
			assert.Equal(t, 3, tk.Line)
		}
	}
}

func TestStringConstantIsOpaqueToCommentMarkers(t *testing.T) {
	toks := scanAll(t, `"not // a comment /* at all */"`)
	require.Len(t, toks, 1)
	assert.Equal(t, token.StringConstant, toks[0].Kind)
	assert.Equal(t, "not // a comment /* at all */", toks[0].Literal)
}

func TestIntegerConstantBoundaries(t *testing.T) {
	toks := scanAll(t, "0 32767")
	require.Len(t, toks, 2)
	assert.Equal(t, "0", toks[0].Literal)
	assert.Equal(t, "32767", toks[1].Literal)
}

func TestIntegerConstantOutOfRangeIsLexicalError(t *testing.T) {
	l := New(strings.NewReader("32768"))
	ok := l.Scan()
	require.False(t, ok)
	var d *diag.Diagnostic
	require.ErrorAs(t, l.Err(), &d)
	assert.Equal(t, diag.LexicalError, d.Class)
}

func TestUnterminatedStringIsLexicalError(t *testing.T) {
	l := New(strings.NewReader(`"oops`))
	ok := l.Scan()
	require.False(t, ok)
	var d *diag.Diagnostic
	require.ErrorAs(t, l.Err(), &d)
	assert.Equal(t, diag.LexicalError, d.Class)
}

func TestUnterminatedBlockCommentIsLexicalError(t *testing.T) {
	l := New(strings.NewReader("let x = 1; /* never closed"))
	for l.Scan() {
	}
	var d *diag.Diagnostic
	require.ErrorAs(t, l.Err(), &d)
	assert.Equal(t, diag.LexicalError, d.Class)
}

func TestDivisionIsNotConfusedWithComment(t *testing.T) {
	toks := scanAll(t, "let x = a / b;")
	var slash int
	for _, tk := range toks {
		if tk.Literal == "/" {
			slash++
		}
	}
	assert.Equal(t, 1, slash)
}
