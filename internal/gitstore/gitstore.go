// Package gitstore reads objects from the repository git-ast runs in and
// shells out to git for the few operations go-git does not provide.
package gitstore

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrNoRepository is returned by Open outside of a git work tree.
var ErrNoRepository = errors.New("not inside a git repository")

// NullHex is the object name git passes for a missing side.
const NullHex = "0000000000000000000000000000000000000000"

type Store struct {
	repo *git.Repository
	dir  string
}

// Open finds the repository containing dir.
func Open(dir string) (*Store, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNoRepository
	} else if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	return &Store{repo: repo, dir: dir}, nil
}

// Blob returns the content of the blob with the given object name.
func (s *Store) Blob(hex string) ([]byte, error) {
	if !plumbing.IsHash(hex) {
		return nil, fmt.Errorf("invalid object name %q", hex)
	}
	blob, err := s.repo.BlobObject(plumbing.NewHash(hex))
	if err != nil {
		return nil, fmt.Errorf("failed to find blob %s: %w", hex, err)
	}
	r, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", hex, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// File returns the blob stored at pathname in the commit rev resolves to.
func (s *Store) File(rev, pathname string) ([]byte, error) {
	h, err := s.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", rev, err)
	}
	commit, err := s.repo.CommitObject(*h)
	if err != nil {
		return nil, fmt.Errorf("failed to load commit %s: %w", h, err)
	}
	f, err := commit.File(pathname)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s in %s: %w", pathname, rev, err)
	}
	r, err := f.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", pathname, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Option is one key of a git config subsection, e.g. filter.ast.process.
type Option struct {
	Section, Subsection, Key, Value string
}

// Configure writes options to the repository's local config.
func (s *Store) Configure(opts []Option) error {
	cfg, err := s.repo.Config()
	if err != nil {
		return fmt.Errorf("failed to read git config: %w", err)
	}
	for _, o := range opts {
		cfg.Raw.Section(o.Section).Subsection(o.Subsection).SetOption(o.Key, o.Value)
	}
	if err := s.repo.SetConfig(cfg); err != nil {
		return fmt.Errorf("failed to write git config: %w", err)
	}
	return nil
}

// ChangedFiles lists the files below the store's directory that differ
// between baseRef and the work tree, relative to that directory.
func (s *Store) ChangedFiles(ctx context.Context, baseRef string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", "--relative", baseRef)
	cmd.Dir = s.dir
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff failed: %w", err)
	}
	return parseNames(output), nil
}

func parseNames(output []byte) []string {
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			names = append(names, line)
		}
	}
	return names
}

// MergeFile runs a line based three-way merge with git merge-file, leaving
// the result in current. It reports whether conflicts remain.
func MergeFile(ctx context.Context, current, base, other string, markerSize int) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "merge-file",
		"-L", "HEAD", "-L", "base", "-L", "BRANCH",
		fmt.Sprintf("--marker-size=%d", markerSize),
		current, base, other)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	var exit *exec.ExitError
	switch {
	case err == nil:
		return false, nil
	case errors.As(err, &exit) && exit.ExitCode() > 0 && exit.ExitCode() < 128:
		// The exit code is the number of conflicts.
		return true, nil
	default:
		return false, fmt.Errorf("git merge-file failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
}
