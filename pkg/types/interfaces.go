package types

import (
	"io/fs"
)

// FS is the filesystem interface required for reconciliation. The
// destination tree is only ever touched through it, which keeps the
// backup-and-replace protocol testable against a scratch directory.
type FS interface {
	// File operations
	Stat(name string) (fs.FileInfo, error)
	Lstat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error

	// Directory operations. Mkdir creates a single level; the
	// reconciler walks ancestors itself.
	Mkdir(path string, perm fs.FileMode) error

	// Mutation operations
	Rename(oldpath, newpath string) error
	Remove(name string) error
	Chmod(name string, mode fs.FileMode) error
	Chown(name string, uid, gid int) error
}
