package diag

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageIncludesLineLexemeAndExpected(t *testing.T) {
	d := New(SyntaxError, 12, ";", `"}"`)
	assert.Equal(t, `syntax error at line 12: got ";", expected "}"`, d.Error())
}

func TestErrorMessageWithoutExpected(t *testing.T) {
	d := New(IOError, 0, "input.jack", "")
	assert.Equal(t, `I/O error at line 0: got "input.jack"`, d.Error())
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("file not found")
	d := Wrap(cause, IOError, 0, "Foo.jack", "a readable file")

	var target *Diagnostic
	require.True(t, errors.As(fmt.Errorf("compile: %w", d), &target))
	assert.Equal(t, IOError, target.Class)
	assert.ErrorIs(t, d, cause)
}
