package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeSource(t *testing.T, dir, className, body string) string {
	t.Helper()
	path := filepath.Join(dir, className+SourceExtension)
	src := "class " + className + " { " + body + " }"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestRunCompilesSingleFile(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "Foo", "function void f() { return; }")

	results, err := Run(context.Background(), zap.NewNop(), src, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	out, err := os.ReadFile(results[0].OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "function Foo.f 0\npush constant 0\nreturn\n", string(out))
}

func TestRunRejectsLowercaseFileName(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "foo", "function void f() { return; }")

	results, err := Run(context.Background(), zap.NewNop(), src, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
}

func TestRunCompilesDirectoryNonRecursively(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "Alpha", "function void f() { return; }")
	writeSource(t, dir, "Beta", "function void g() { return; }")

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeSource(t, sub, "Gamma", "function void h() { return; }")

	results, err := Run(context.Background(), zap.NewNop(), dir, Options{Jobs: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}

func TestRunWritesToOutDirWhenSet(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "Foo", "function void f() { return; }")

	outDir := t.TempDir()
	results, err := Run(context.Background(), zap.NewNop(), src, Options{OutDir: outDir})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, filepath.Join(outDir, "Foo.vm"), results[0].OutputPath)

	_, err = os.Stat(results[0].OutputPath)
	require.NoError(t, err)
}

func TestRunDeletesPartialOutputOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Bad.jack")
	require.NoError(t, os.WriteFile(path, []byte("class Bad { function void f() { let ; } }"), 0o644))

	results, err := Run(context.Background(), zap.NewNop(), path, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)

	_, statErr := os.Stat(results[0].OutputPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunParallelProducesSameOutputRegardlessOfJobs(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"One", "Two", "Three", "Four"} {
		writeSource(t, dir, name, "function void f() { var int x; let x = "+itoa(i)+"; return x; }")
	}

	serial, err := Run(context.Background(), zap.NewNop(), dir, Options{OutDir: t.TempDir(), Jobs: 1})
	require.NoError(t, err)

	parallel, err := Run(context.Background(), zap.NewNop(), dir, Options{OutDir: t.TempDir(), Jobs: 8})
	require.NoError(t, err)

	require.Len(t, serial, len(parallel))
	byClass := func(results []Result) map[string]string {
		m := make(map[string]string)
		for _, r := range results {
			require.NoError(t, r.Err)
			content, err := os.ReadFile(r.OutputPath)
			require.NoError(t, err)
			m[r.ClassName] = string(content)
		}
		return m
	}
	assert.Equal(t, byClass(serial), byClass(parallel))
}

func itoa(i int) string {
	digits := "0123456789"
	if i < 10 {
		return string(digits[i])
	}
	return string(digits[i/10]) + string(digits[i%10])
}

func TestCollectFilesRejectsUnknownPath(t *testing.T) {
	_, err := collectFiles(filepath.Join(t.TempDir(), "missing.jack"))
	assert.Error(t, err)
}
