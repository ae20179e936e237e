// Package fetch ensures a local checkout of the configuration
// repository exists before the sync runs.
//
// It shells out to the git binary on PATH: clone when the storage path
// does not exist yet, pull when it does, then checkout the configured
// branch. The combined output of each invocation is surfaced for
// tracing and attached to fetch errors. There is no rollback; a fetch
// failure aborts the run before the destination is touched.
package fetch

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/arthur-debert/server-sync/pkg/errors"
	"github.com/arthur-debert/server-sync/pkg/logging"
)

// Runner executes one git invocation in dir and returns its combined
// stdout and stderr. It is injectable so tests can record the argv
// sequence without a git binary or a network.
type Runner func(ctx context.Context, dir string, args ...string) (string, error)

// Fetcher materializes a branch checkout at a storage path.
type Fetcher struct {
	Storage string
	URL     string
	Branch  string

	run Runner
}

// New creates a Fetcher using the real git binary.
func New(storage, url, branch string) *Fetcher {
	return &Fetcher{Storage: storage, URL: url, Branch: branch, run: runGit}
}

// NewWithRunner creates a Fetcher with a custom runner for tests.
func NewWithRunner(storage, url, branch string, run Runner) *Fetcher {
	return &Fetcher{Storage: storage, URL: url, Branch: branch, run: run}
}

// Ensure makes the storage path a checkout of the configured branch.
// Missing storage is cloned, existing storage is pulled, and the branch
// is checked out in either case.
func (f *Fetcher) Ensure(ctx context.Context) error {
	logger := logging.GetLogger("fetch")

	if _, err := os.Stat(f.Storage); err != nil {
		if !os.IsNotExist(err) {
			return errors.Wrapf(err, errors.ErrFetch, "stat repository storage %s", f.Storage)
		}
		if f.URL == "" {
			return errors.Newf(errors.ErrFetch, "repository storage %s does not exist and no repository URL is configured", f.Storage)
		}
		logger.Info().Str("url", f.URL).Str("storage", f.Storage).Msg("Cloning repository")
		out, err := f.run(ctx, "", "clone", f.URL, f.Storage)
		if err != nil {
			return errors.Wrapf(err, errors.ErrFetch, "clone %s", f.URL).WithDetail("output", out)
		}
		logger.Trace().Str("output", out).Msg("Clone output")
	} else {
		logger.Info().Str("storage", f.Storage).Msg("Pulling repository")
		out, err := f.run(ctx, f.Storage, "pull")
		if err != nil {
			return errors.Wrap(err, errors.ErrFetch, "pull repository").WithDetail("output", out)
		}
		if strings.Contains(out, "Already up to date") {
			logger.Info().Msg("Repository is already up to date")
		} else {
			logger.Info().Msg("Repository synchronized")
			logger.Trace().Str("output", out).Msg("Pull output")
		}
	}

	out, err := f.run(ctx, f.Storage, "checkout", f.Branch)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFetch, "checkout branch %s", f.Branch).WithDetail("output", out)
	}
	logger.Trace().Str("output", out).Str("branch", f.Branch).Msg("Checkout output")

	return nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	logger := logging.GetLogger("fetch")
	logger.Debug().Str("dir", dir).Strs("args", args).Msg("Running git")

	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}
