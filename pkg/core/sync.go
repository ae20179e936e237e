package core

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/server-sync/pkg/config"
	"github.com/arthur-debert/server-sync/pkg/errors"
	"github.com/arthur-debert/server-sync/pkg/fetch"
	"github.com/arthur-debert/server-sync/pkg/logging"
	"github.com/arthur-debert/server-sync/pkg/template"
	"github.com/arthur-debert/server-sync/pkg/types"
)

// FileError records one failed file; the run continues past it.
type FileError struct {
	Context string
	Path    string
	Err     error
}

// Summary is the aggregate terminal state of a run.
type Summary struct {
	Created   int
	Replaced  int
	Unchanged int
	Failures  []FileError
}

// Failed reports the number of files that could not be reconciled.
func (s *Summary) Failed() int {
	return len(s.Failures)
}

// Syncer drives the pipeline: fetch, precondition checks, then one
// sequential pass over every context in configured order.
type Syncer struct {
	settings *config.Settings
	fs       types.FS
	fetcher  *fetch.Fetcher
	registry *template.Registry
	logger   zerolog.Logger
}

// New creates a Syncer for the given settings. fetcher may be nil when
// the checkout is known to be in place (tests use this).
func New(settings *config.Settings, fsys types.FS, fetcher *fetch.Fetcher) *Syncer {
	return &Syncer{
		settings: settings,
		fs:       fsys,
		fetcher:  fetcher,
		registry: template.NewRegistry(),
		logger:   logging.GetLogger("core.sync"),
	}
}

// Run executes the pipeline. Per-file errors are collected in the
// summary; the returned error is non-nil only for fatal conditions
// (fetch failure, missing preconditions), which abort before any
// destination write.
func (s *Syncer) Run(ctx context.Context) (*Summary, error) {
	if s.fetcher != nil {
		if err := s.fetcher.Ensure(ctx); err != nil {
			return nil, err
		}
	}

	if err := s.checkPreconditions(); err != nil {
		return nil, err
	}

	s.logger.Debug().Str("destination", s.settings.DestinationRoot).Msg("Destination root")
	s.logger.Debug().Int("variables", len(s.settings.Variables)).Msg("Render variables")

	summary := &Summary{}
	reconciler := NewReconciler(s.fs, s.settings.DestinationRoot, s.settings.Identity)

	for i := range s.settings.Contexts {
		c := &s.settings.Contexts[i]
		s.logger.Info().Str("context", c.Name).Msg("Processing context")
		s.logger.Debug().Str("sourceRoot", c.SourceRoot).Msg("Context source root")

		err := walkContext(c.SourceRoot, func(rel, abs string) error {
			s.logger.Trace().Str("context", c.Name).Str("path", rel).Msg("Processing file")

			if err := s.syncFile(c, rel, abs, reconciler, summary); err != nil {
				// Isolated: record and continue with the next file.
				s.logger.Error().Err(err).Str("context", c.Name).Str("path", rel).Msg("File failed")
				summary.Failures = append(summary.Failures, FileError{Context: c.Name, Path: rel, Err: err})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	s.logger.Info().
		Int("created", summary.Created).
		Int("replaced", summary.Replaced).
		Int("unchanged", summary.Unchanged).
		Int("failed", summary.Failed()).
		Msg("Sync finished")

	return summary, nil
}

// syncFile runs one file through classify, render, reconcile.
func (s *Syncer) syncFile(c *types.Context, rel, abs string, reconciler *Reconciler, summary *Summary) error {
	rec, err := classify(s.fs, c, s.settings.DestinationRoot, rel, abs)
	if err != nil {
		return err
	}

	candidate := rec.SourceBytes
	if rec.IsText {
		name := filepath.Base(rel)
		if err := s.registry.Register(name, rec.Text); err != nil {
			return err
		}
		rendered, err := s.registry.Render(name, template.Vars(s.settings.Variables, c.Name))
		if err != nil {
			return err
		}
		candidate = []byte(rendered)
	}

	outcome, err := reconciler.Reconcile(rec, candidate)
	if err != nil {
		return err
	}

	switch outcome {
	case types.OutcomeCreated:
		summary.Created++
	case types.OutcomeReplaced:
		summary.Replaced++
	case types.OutcomeUnchanged:
		summary.Unchanged++
	}
	return nil
}

// checkPreconditions verifies the destination root and every context
// source root exist and are directories. Runs after the fetch (the
// context roots come from the checkout) and before any write.
func (s *Syncer) checkPreconditions() error {
	info, err := os.Stat(s.settings.DestinationRoot)
	if err != nil {
		return errors.Wrapf(err, errors.ErrConfig, "destination root %s", s.settings.DestinationRoot)
	}
	if !info.IsDir() {
		return errors.Newf(errors.ErrConfig, "destination root %s is not a directory", s.settings.DestinationRoot)
	}

	for _, c := range s.settings.Contexts {
		info, err := os.Stat(c.SourceRoot)
		if err != nil {
			return errors.Wrapf(err, errors.ErrConfig, "context %q source root %s", c.Name, c.SourceRoot)
		}
		if !info.IsDir() {
			return errors.Newf(errors.ErrConfig, "context %q source root %s is not a directory", c.Name, c.SourceRoot)
		}
	}
	return nil
}
