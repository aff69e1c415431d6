package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gitast/internal/codec"
	"gitast/internal/config"
	"gitast/internal/diff"
	"gitast/internal/filter"
	"gitast/internal/logging"
	"gitast/internal/syntax"
)

var (
	rootCmd = &cobra.Command{
		Use:           "git-ast",
		Short:         "Store source files as syntax trees and diff and merge them structurally",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			cmd.SetContext(logging.With(cmd.Context(), logger))
			if cfg.File != "" {
				logger.Debug("loaded config", zap.String("file", cfg.File))
			}
			return nil
		},
	}
	configPath string
	cfg        *config.Config
)

// exitError carries a specific exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	code := 1
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
	}
	fmt.Fprintln(os.Stderr, "git-ast:", err)
	os.Exit(code)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to the config file (default: gitast.yaml in the working directory)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "console", "Log format (console or json)")
	flags.String("on-parse-error", "fail", "What clean does with files it cannot parse (fail or passthrough)")
	flags.Int64("max-file-size", 10<<20, "Largest file in bytes the filter accepts, 0 for no limit")

	rootCmd.AddCommand(filterProcessCmd, cleanCmd, smudgeCmd)
	rootCmd.AddCommand(diffDriverCmd, mergeDriverCmd)
	rootCmd.AddCommand(showCmd, checkCmd, setupCmd)
}

// diffFlags registers the matching options shared by diff-driver and
// merge-driver.
func diffFlags(cmd *cobra.Command) {
	cmd.Flags().Int("min-subtree", 2, "Smallest subtree matched by identity")
	cmd.Flags().Float64("similarity", 0.5, "Share of matched descendants needed to pair two containers")
}

func newPipeline() (*filter.Pipeline, *syntax.Registry) {
	reg := syntax.NewRegistry()
	return filter.New(reg, codec.Codec{}, syntax.LayoutPrinter{}, filter.Options{
		OnParseError: cfg.Filter.OnParseError,
		MaxFileSize:  cfg.Filter.MaxFileSize,
	}), reg
}

func diffOptions() diff.Options {
	return diff.Options{
		MinSubtreeSize:      cfg.Diff.MinSubtreeSize,
		SimilarityThreshold: cfg.Diff.SimilarityThreshold,
	}
}
