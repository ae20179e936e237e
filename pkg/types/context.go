package types

import "path/filepath"

// Context is a named subtree under {repo_storage}/contexts/ whose files
// are materialized into the destination during a run.
type Context struct {
	// Name is the context name as given in the settings. It is also
	// injected into every render as the server_name variable.
	Name string

	// SourceRoot is the absolute path of the context's subtree inside
	// the repository checkout.
	SourceRoot string
}

// NewContext builds a context rooted at {repoStorage}/contexts/{name}.
func NewContext(name, repoStorage string) Context {
	return Context{
		Name:       name,
		SourceRoot: filepath.Join(repoStorage, "contexts", name),
	}
}
