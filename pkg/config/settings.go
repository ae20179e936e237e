package config

import (
	"github.com/arthur-debert/server-sync/pkg/owner"
	"github.com/arthur-debert/server-sync/pkg/types"
)

// Option keys, shared by the defaults file, the env-file, the process
// environment, and the flag layer.
const (
	KeyEnvFile     = "env_file"
	KeyRepo        = "repo"
	KeyBranch      = "branch"
	KeyDestination = "destination"
	KeyContexts    = "contexts"
	KeyRepoStorage = "repo_storage"
)

// envKeys maps SERVER_SYNC_* environment variable names to option keys.
// Variables outside this map never become options (they still reach the
// renderer through the variable map).
var envKeys = map[string]string{
	"SERVER_SYNC_ENV":          KeyEnvFile,
	"SERVER_SYNC_REPO":         KeyRepo,
	"SERVER_SYNC_BRANCH":       KeyBranch,
	"SERVER_SYNC_DESTINATION":  KeyDestination,
	"SERVER_SYNC_CONTEXTS":     KeyContexts,
	"SERVER_SYNC_REPO_STORAGE": KeyRepoStorage,
}

// Options carries the CLI flag values into resolution. Changed reports
// which flags were explicitly set; unset flags do not participate in
// the chain.
type Options struct {
	EnvFile     string
	Repo        string
	Branch      string
	Destination string
	RepoStorage string
	Contexts    []string

	Changed map[string]bool
}

// Settings is the immutable per-run snapshot every other component
// reads from.
type Settings struct {
	DestinationRoot string
	RepoStorage     string
	RepoURL         string
	Branch          string
	EnvFile         string

	// Contexts in input order; files from context k+1 are visited only
	// after context k finishes.
	Contexts []types.Context

	// Variables is the renderer namespace before server_name injection.
	Variables map[string]string

	OwnerSpec string
	GroupSpec string
	Identity  owner.Identity
}
