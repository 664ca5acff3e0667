// Package driver walks a file or directory argument, opens each
// matching source file, and runs one compiler.Compiler per file. It
// owns all file-handle lifetimes and the optional parallel fan-out
// across a directory's independent files.
package driver

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/libklein/jackc/internal/compiler"
	"github.com/libklein/jackc/internal/diag"
	"github.com/libklein/jackc/internal/lexer"
	"github.com/libklein/jackc/internal/vmwriter"
)

// SourceExtension is the only extension the driver looks for when
// walking a directory, and the only one it will accept for a single
// file argument.
const SourceExtension = ".jack"

// OutputExtension is the extension written for every compiled file.
const OutputExtension = ".vm"

// Options configures a Run.
type Options struct {
	// OutDir overrides the directory each .vm file is written to. If
	// empty, output is written alongside its source file.
	OutDir string
	// Jobs caps the number of files compiled concurrently when the
	// path argument is a directory. A directory's file list is always
	// collected sequentially and non-recursively; only the per-file
	// compilation is parallelized. Zero or negative defaults to
	// runtime.NumCPU().
	Jobs int
	// Strict enables the VM writer's label-balance check.
	Strict bool
}

// Result is the outcome of compiling a single source file.
type Result struct {
	SourcePath string
	OutputPath string
	ClassName  string
	Duration   time.Duration
	Err        error
}

// Run compiles the file or every SourceExtension file directly inside
// the directory named by path, per opts. It returns one Result per
// file attempted, in file-list order (not completion order), and a
// non-nil error only for failures before any file could be attempted
// (a bad path, an unreadable directory).
func Run(ctx context.Context, log *zap.Logger, path string, opts Options) ([]Result, error) {
	files, err := collectFiles(path)
	if err != nil {
		return nil, err
	}

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	results := make([]Result, len(files))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(jobs)

	for i, file := range files {
		i, file := i, file
		group.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			results[i] = compileOne(file, opts, log)
			return nil
		})
	}
	// errgroup.Group.Go's returned error here is always nil: each
	// worker records its failure on its own Result instead of
	// propagating it, so one file's syntax error doesn't cancel
	// siblings that are still making progress. SetLimit alone bounds
	// concurrency; Wait only ever surfaces a context cancellation.
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return results, err
	}
	return results, nil
}

func compileOne(sourcePath string, opts Options, log *zap.Logger) Result {
	start := time.Now()
	className := classNameFor(sourcePath)
	outputPath := outputPathFor(sourcePath, opts.OutDir)

	res := Result{SourcePath: sourcePath, OutputPath: outputPath, ClassName: className}

	log.Debug("compiling file", zap.String("source", sourcePath), zap.String("class", className))

	if err := checkClassNameConvention(className); err != nil {
		res.Err = err
		res.Duration = time.Since(start)
		log.Error("compile failed", zap.String("source", sourcePath), zap.Error(err))
		return res
	}

	if err := compileFile(sourcePath, outputPath, className, opts.Strict); err != nil {
		res.Err = err
		res.Duration = time.Since(start)
		log.Error("compile failed",
			zap.String("source", sourcePath),
			zap.Error(err),
		)
		return res
	}

	res.Duration = time.Since(start)
	log.Info("compiled file",
		zap.String("source", sourcePath),
		zap.String("output", outputPath),
		zap.Duration("elapsed", res.Duration),
	)
	return res
}

func compileFile(sourcePath, outputPath, className string, strict bool) (err error) {
	in, err := os.Open(sourcePath)
	if err != nil {
		return diag.Wrap(err, diag.IOError, 0, sourcePath, "a readable source file")
	}
	defer func() {
		if cerr := in.Close(); cerr != nil && err == nil {
			err = diag.Wrap(cerr, diag.IOError, 0, sourcePath, "a closable source file")
		}
	}()

	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return diag.Wrap(err, diag.IOError, 0, outputPath, "a writable output file")
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = diag.Wrap(cerr, diag.IOError, 0, outputPath, "a closable output file")
		}
		if err != nil {
			// The partial output is not valid VM code; never let a
			// half-written file pass for a successful compile.
			os.Remove(outputPath)
		}
	}()

	if compErr := compileStream(in, out, className, strict); compErr != nil {
		err = compErr
	}
	return err
}

func compileStream(r io.Reader, w io.Writer, className string, strict bool) error {
	lex := lexer.New(r)
	vw := vmwriter.New(w, strict)
	eng := compiler.New(lex, vw)
	if err := eng.Compile(className); err != nil {
		return err
	}
	return vw.Err()
}

// checkClassNameConvention enforces the file-naming rule from the
// specification: the base name a class is compiled from must begin
// with an uppercase letter, matching the source language's class
// naming convention.
func checkClassNameConvention(className string) error {
	first, _ := utf8.DecodeRuneInString(className)
	if first == utf8.RuneError || !unicode.IsUpper(first) {
		return diag.New(diag.DriverError, 0, className, "a file base name beginning with an uppercase letter")
	}
	return nil
}

func classNameFor(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

func outputPathFor(sourcePath, outDir string) string {
	stem := classNameFor(sourcePath)
	if outDir != "" {
		return filepath.Join(outDir, stem+OutputExtension)
	}
	return filepath.Join(filepath.Dir(sourcePath), stem+OutputExtension)
}

// collectFiles resolves path to the list of source files to compile:
// path itself if it is a single source file, or every SourceExtension
// file directly inside it (non-recursive) if it is a directory.
func collectFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, diag.Wrap(err, diag.DriverError, 0, path, "an existing file or directory")
	}

	if !info.IsDir() {
		if filepath.Ext(path) != SourceExtension {
			return nil, diag.New(diag.DriverError, 0, path, "a file with the "+SourceExtension+" extension")
		}
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, diag.Wrap(err, diag.DriverError, 0, path, "a readable directory")
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != SourceExtension {
			continue
		}
		files = append(files, filepath.Join(path, entry.Name()))
	}
	return files, nil
}
