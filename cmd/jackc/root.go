package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/libklein/jackc/internal/driver"
)

type rootFlags struct {
	outDir  string
	jobs    int
	verbose bool
	strict  bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	run := func(cmd *cobra.Command, args []string) error {
		return runCompile(cmd, args[0], flags)
	}

	root := &cobra.Command{
		Use:   "jackc <path>",
		Short: "Compile Jack-family class sources to VM instruction text",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}

	compile := &cobra.Command{
		Use:   "compile <path>",
		Short: "Compile a source file or a directory of source files",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}

	for _, cmd := range []*cobra.Command{root, compile} {
		cmd.Flags().StringVarP(&flags.outDir, "out", "o", "", "output directory (default: alongside each source file)")
		cmd.Flags().IntVarP(&flags.jobs, "jobs", "j", 0, "max concurrent file compiles for a directory (default: NumCPU)")
		cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug-level structured logging")
		cmd.Flags().BoolVar(&flags.strict, "strict", false, "validate label/branch balance for each emitted function")
	}

	root.AddCommand(compile)
	return root
}

func runCompile(cmd *cobra.Command, path string, flags *rootFlags) error {
	log, err := newLogger(flags.verbose)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck // best-effort flush on exit

	results, err := driver.Run(context.Background(), log, path, driver.Options{
		OutDir: flags.outDir,
		Jobs:   flags.jobs,
		Strict: flags.strict,
	})
	if err != nil {
		return err
	}

	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", res.SourcePath, res.Err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", res.SourcePath, res.OutputPath)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed to compile", failed, len(results))
	}
	if len(results) == 0 {
		return fmt.Errorf("no %s files found at %q", driver.SourceExtension, path)
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = ""
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}
