package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"gitast/internal/crawler"
	"gitast/internal/gitstore"
	"gitast/internal/syntax"
)

var showCmd = &cobra.Command{
	Use:   "show <rev> <path>",
	Short: "Print a file as it was at a revision, converted to source text",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := gitstore.Open(".")
		if err != nil {
			return err
		}
		blob, err := store.File(args[0], filepath.ToSlash(args[1]))
		if err != nil {
			return err
		}
		pipe, _ := newPipeline()
		out, err := pipe.Smudge(cmd.Context(), args[1], blob)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var since string

var checkCmd = &cobra.Command{
	Use:   "check [dir]",
	Short: "Verify that every supported file survives clean and smudge unchanged",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		pipe, reg := newPipeline()

		var only []string
		if since != "" {
			store, err := gitstore.Open(dir)
			if err != nil {
				return err
			}
			changed, err := store.ChangedFiles(cmd.Context(), since)
			if err != nil {
				return err
			}
			only = lo.FilterMap(changed, func(p string, _ int) (string, bool) {
				return filepath.Join(dir, p), reg.Supports(p)
			})
			if len(only) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no supported files changed")
				return nil
			}
		}

		results, err := crawler.NewCrawler(pipe, reg).Check(cmd.Context(), dir, only)
		if err != nil {
			return err
		}
		failed := lo.Filter(results, func(r crawler.Result, _ int) bool { return r.Err != nil })
		for _, r := range failed {
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", r.Path, r.Err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d files checked, %d failed\n", len(results), len(failed))
		if len(failed) > 0 {
			return &exitError{code: 2, err: fmt.Errorf("%d files are not fixed points", len(failed))}
		}
		return nil
	},
}

// gitOptions is the configuration that hooks git-ast into git.
var gitOptions = []gitstore.Option{
	{Section: "filter", Subsection: "ast", Key: "process", Value: "git-ast filter-process"},
	{Section: "filter", Subsection: "ast", Key: "required", Value: "true"},
	{Section: "diff", Subsection: "ast", Key: "command", Value: "git-ast diff-driver"},
	{Section: "merge", Subsection: "ast", Key: "name", Value: "structural merge driver"},
	{Section: "merge", Subsection: "ast", Key: "driver", Value: "git-ast merge-driver %O %A %B %L %P"},
}

var apply bool

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Print (or apply) the git configuration that enables git-ast",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := syntax.NewRegistry()

		var sb strings.Builder
		sb.WriteString("# .gitattributes\n")
		for _, ext := range reg.Extensions() {
			fmt.Fprintf(&sb, "*%s filter=ast diff=ast merge=ast\n", ext)
		}
		sb.WriteString("\n# git config\n")
		for _, o := range gitOptions {
			fmt.Fprintf(&sb, "git config %s.%s.%s %q\n", o.Section, o.Subsection, o.Key, o.Value)
		}
		if _, err := fmt.Fprint(cmd.OutOrStdout(), sb.String()); err != nil {
			return err
		}

		if !apply {
			return nil
		}
		store, err := gitstore.Open(".")
		if err != nil {
			return err
		}
		if err := store.Configure(gitOptions); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "git config updated; add the .gitattributes lines yourself")
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVar(&since, "since", "", "Only check files changed since this revision")
	setupCmd.Flags().BoolVar(&apply, "apply", false, "Write the git config to the current repository")
}
