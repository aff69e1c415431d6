package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gitast/internal/driver"
	"gitast/internal/gitstore"
	"gitast/internal/logging"
	"gitast/internal/merge"
)

var diffDriverCmd = &cobra.Command{
	Use:   "diff-driver <path> <old-file> <old-hex> <old-mode> <new-file> <new-hex> <new-mode>",
	Short: "Print a structural diff, as git's external diff command",
	Long: `Print a structural diff, as git's external diff command.

Configure it with
  git config diff.ast.command "git-ast diff-driver"`,
	Args: cobra.RangeArgs(1, 9),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pipe, _ := newPipeline()

		var blobs driver.Blobs
		if store, err := gitstore.Open("."); err == nil {
			blobs = store
		} else if !errors.Is(err, gitstore.ErrNoRepository) {
			logging.From(ctx).Warn("object database unavailable", zap.Error(err))
		}

		d := driver.NewDiffDriver(pipe, blobs, driver.DiffOptions{
			Diff:    diffOptions(),
			Format:  cfg.Diff.Format,
			Color:   cfg.Diff.Color,
			Context: cfg.Diff.Context,
		})
		return d.Run(ctx, os.Stdout, args)
	},
}

var mergeDriverCmd = &cobra.Command{
	Use:   "merge-driver <base> <current> <other> <marker-size> <pathname>",
	Short: "Merge three versions of a file structurally, as git's merge driver",
	Long: `Merge three versions of a file structurally, as git's merge driver.

The result replaces <current>. The exit status is 0 for a clean merge and 1
when conflicts remain. Configure it with
  git config merge.ast.driver "git-ast merge-driver %O %A %B %L %P"`,
	Args: cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		pipe, _ := newPipeline()
		d := driver.NewMergeDriver(pipe, driver.MergeOptions{
			Merge:      merge.Options{Diff: diffOptions()},
			MarkerSize: cfg.Merge.MarkerSize,
			OnConflict: cfg.Merge.OnConflict,
		})
		return d.Run(cmd.Context(), args)
	},
}

func init() {
	diffFlags(diffDriverCmd)
	diffDriverCmd.Flags().String("format", "text", "Output format (text, yaml or json)")
	diffDriverCmd.Flags().String("color", "auto", "Colour text output (auto, always or never)")
	diffDriverCmd.Flags().Int("context", 3, "Context lines of the line diff fallback")

	diffFlags(mergeDriverCmd)
	mergeDriverCmd.Flags().String("on-conflict", "markers", "Write conflict markers or leave the file untouched (markers or abort)")
}
