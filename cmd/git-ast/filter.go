package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gitast/internal/logging"
	"gitast/internal/protocol"
)

var filterProcessCmd = &cobra.Command{
	Use:   "filter-process",
	Short: "Serve git's long running filter protocol on stdin and stdout",
	Long: `Serve git's long running filter protocol on stdin and stdout.

Configure it with
  git config filter.ast.process "git-ast filter-process"
  git config filter.ast.required true`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pipe, _ := newPipeline()
		engine := protocol.NewEngine(os.Stdin, os.Stdout, pipe, protocol.Options{
			Required: cfg.Filter.RequiredCapabilities,
		})
		err := engine.Run(ctx)
		logging.From(ctx).Debug("filter session ended",
			zap.Stringer("state", engine.State()),
			zap.Strings("capabilities", engine.Capabilities()))
		return err
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean <path>",
	Short: "Convert source text on stdin into its canonical tree on stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		pipe, _ := newPipeline()
		out, err := pipe.Clean(cmd.Context(), args[0], src)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var smudgeCmd = &cobra.Command{
	Use:   "smudge <path>",
	Short: "Convert a canonical tree on stdin into source text on stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		blob, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		pipe, _ := newPipeline()
		out, err := pipe.Smudge(cmd.Context(), args[0], blob)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
