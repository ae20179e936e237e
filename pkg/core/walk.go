package core

import (
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/arthur-debert/server-sync/pkg/errors"
	"github.com/arthur-debert/server-sync/pkg/logging"
)

// walkContext walks a context's source root and calls fn for every
// regular file, with its path relative to root. Symlinks and
// directories are never yielded, symlinks are never followed, and the
// walk does not cross onto a different filesystem device. Order is
// lexical, so it is stable for a given tree.
func walkContext(root string, fn func(rel, abs string) error) error {
	logger := logging.GetLogger("core.walk")

	rootInfo, err := os.Lstat(root)
	if err != nil {
		return errors.Wrapf(err, errors.ErrConfig, "context source root %s", root)
	}
	if !rootInfo.IsDir() {
		return errors.Newf(errors.ErrConfig, "context source root %s is not a directory", root)
	}
	rootDev := deviceOf(rootInfo)

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal; the files we
			// can reach still sync.
			logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("Skipping unstatable directory")
				return filepath.SkipDir
			}
			if dev := deviceOf(info); dev != rootDev {
				logger.Debug().Str("path", path).Msg("Skipping mount point")
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks, sockets, devices: not yielded.
		if !d.Type().IsRegular() {
			logger.Trace().Str("path", path).Msg("Skipping non-regular entry")
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "relativize %s", path)
		}
		return fn(rel, path)
	})
}

func deviceOf(info fs.FileInfo) uint64 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Dev)
	}
	return 0
}
