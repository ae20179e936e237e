package core

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/server-sync/pkg/config"
	"github.com/arthur-debert/server-sync/pkg/errors"
	"github.com/arthur-debert/server-sync/pkg/filesystem"
	"github.com/arthur-debert/server-sync/pkg/types"
)

// testSettings builds a settings snapshot over a scratch repo storage
// and destination, with the current user as the identity.
func testSettings(t *testing.T, contextNames []string, vars map[string]string) *config.Settings {
	t.Helper()

	storage := t.TempDir()
	dest := t.TempDir()

	var contexts []types.Context
	for _, name := range contextNames {
		c := types.NewContext(name, storage)
		require.NoError(t, os.MkdirAll(c.SourceRoot, 0o755))
		contexts = append(contexts, c)
	}

	if vars == nil {
		vars = map[string]string{}
	}

	return &config.Settings{
		DestinationRoot: dest,
		RepoStorage:     storage,
		Branch:          "master",
		Contexts:        contexts,
		Variables:       vars,
		Identity:        testIdentity(),
	}
}

func writeSource(t *testing.T, c types.Context, rel string, content []byte) {
	t.Helper()
	path := filepath.Join(c.SourceRoot, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func run(t *testing.T, settings *config.Settings) *Summary {
	t.Helper()
	summary, err := New(settings, filesystem.NewOS(), nil).Run(context.Background())
	require.NoError(t, err)
	return summary
}

func assertOwnedByCurrent(t *testing.T, info fs.FileInfo) {
	t.Helper()
	st, ok := info.Sys().(*syscall.Stat_t)
	require.True(t, ok)
	assert.Equal(t, os.Getuid(), int(st.Uid))
	assert.Equal(t, os.Getgid(), int(st.Gid))
}

func TestFreshInstall(t *testing.T) {
	settings := testSettings(t, []string{"web"}, map[string]string{"PORT": "8080"})
	writeSource(t, settings.Contexts[0], filepath.Join("etc", "app.conf"), []byte("host={{server_name}}:{{PORT}}"))

	summary := run(t, settings)
	assert.Equal(t, 1, summary.Created)
	assert.Zero(t, summary.Failed())

	dest := filepath.Join(settings.DestinationRoot, "etc", "app.conf")
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "host=web:8080", string(data))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
	assertOwnedByCurrent(t, info)

	_, err = os.Stat(BackupPath(dest))
	assert.True(t, os.IsNotExist(err))
}

func TestUnchangedRerun(t *testing.T) {
	settings := testSettings(t, []string{"web"}, map[string]string{"PORT": "8080"})
	writeSource(t, settings.Contexts[0], filepath.Join("etc", "app.conf"), []byte("host={{server_name}}:{{PORT}}"))

	first := run(t, settings)
	require.Equal(t, 1, first.Created)

	dest := filepath.Join(settings.DestinationRoot, "etc", "app.conf")
	before, err := os.ReadFile(dest)
	require.NoError(t, err)

	second := run(t, settings)
	assert.Equal(t, 1, second.Unchanged)
	assert.Zero(t, second.Created)
	assert.Zero(t, second.Replaced)

	after, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, before, after, "destination bit-identical after idempotent rerun")

	_, err = os.Stat(BackupPath(dest))
	assert.True(t, os.IsNotExist(err), "no backups on the second run")
}

func TestDriftedDestination(t *testing.T) {
	settings := testSettings(t, []string{"web"}, map[string]string{"PORT": "8080"})
	writeSource(t, settings.Contexts[0], filepath.Join("etc", "app.conf"), []byte("host={{server_name}}:{{PORT}}"))

	run(t, settings)

	dest := filepath.Join(settings.DestinationRoot, "etc", "app.conf")
	require.NoError(t, os.WriteFile(dest, []byte("host=web:9999"), 0o644))

	summary := run(t, settings)
	assert.Equal(t, 1, summary.Replaced)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "host=web:8080", string(data))

	bak, err := os.ReadFile(BackupPath(dest))
	require.NoError(t, err)
	assert.Equal(t, "host=web:9999", string(bak))
}

func TestOpaqueFileCopiedVerbatim(t *testing.T) {
	settings := testSettings(t, []string{"web"}, nil)

	// Invalid UTF-8, with bytes that resemble template syntax.
	raw := []byte{0x00, 0xFF, 0x80, '{', '{', 'x', '}', '}'}
	writeSource(t, settings.Contexts[0], filepath.Join("bin", "blob"), raw)

	summary := run(t, settings)
	assert.Equal(t, 1, summary.Created)
	assert.Zero(t, summary.Failed(), "templating is never attempted on opaque files")

	data, err := os.ReadFile(filepath.Join(settings.DestinationRoot, "bin", "blob"))
	require.NoError(t, err)
	assert.Equal(t, raw, data)
}

func TestMissingVariableFailsOnlyThatFile(t *testing.T) {
	settings := testSettings(t, []string{"web"}, map[string]string{"PORT": "8080"})
	writeSource(t, settings.Contexts[0], "bad.conf", []byte("value={{MISSING}}"))
	writeSource(t, settings.Contexts[0], "good.conf", []byte("port={{PORT}}"))

	summary := run(t, settings)
	assert.Equal(t, 1, summary.Created, "sibling file still processed")
	require.Equal(t, 1, summary.Failed())
	assert.Equal(t, "bad.conf", summary.Failures[0].Path)
	assert.True(t, errors.IsErrorCode(summary.Failures[0].Err, errors.ErrRender))

	_, err := os.Stat(filepath.Join(settings.DestinationRoot, "bad.conf"))
	assert.True(t, os.IsNotExist(err), "failed file is not written")

	data, err := os.ReadFile(filepath.Join(settings.DestinationRoot, "good.conf"))
	require.NoError(t, err)
	assert.Equal(t, "port=8080", string(data))
}

func TestTwoContextsSharedPathLastWriterWins(t *testing.T) {
	settings := testSettings(t, []string{"a", "b"}, nil)
	writeSource(t, settings.Contexts[0], filepath.Join("etc", "app.conf"), []byte("name={{server_name}}"))
	writeSource(t, settings.Contexts[1], filepath.Join("etc", "app.conf"), []byte("name={{server_name}}"))

	summary := run(t, settings)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Replaced)

	dest := filepath.Join(settings.DestinationRoot, "etc", "app.conf")
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "name=b", string(data), "later context wins")

	bak, err := os.ReadFile(BackupPath(dest))
	require.NoError(t, err)
	assert.Equal(t, "name=a", string(bak), "earlier rendering preserved as backup")
}

func TestServerNameShadowsEnvironmentEntry(t *testing.T) {
	settings := testSettings(t, []string{"web"}, map[string]string{"server_name": "from-env"})
	writeSource(t, settings.Contexts[0], "app.conf", []byte("name={{server_name}}"))

	run(t, settings)

	data, err := os.ReadFile(filepath.Join(settings.DestinationRoot, "app.conf"))
	require.NoError(t, err)
	assert.Equal(t, "name=web", string(data))

	// The settings variables are untouched after the run.
	assert.Equal(t, "from-env", settings.Variables["server_name"])
}

func TestContextsProcessedInOrder(t *testing.T) {
	settings := testSettings(t, []string{"first", "second"}, nil)
	writeSource(t, settings.Contexts[0], "a.conf", []byte("from first"))
	writeSource(t, settings.Contexts[1], "b.conf", []byte("from second"))

	var order []string
	syncer := New(settings, filesystem.NewOS(), nil)
	for i := range settings.Contexts {
		c := &settings.Contexts[i]
		err := walkContext(c.SourceRoot, func(rel, abs string) error {
			order = append(order, c.Name+"/"+rel)
			return nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"first/a.conf", "second/b.conf"}, order)

	summary, err := syncer.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Created)
}

func TestMissingContextRootFailsBeforeAnyWrite(t *testing.T) {
	settings := testSettings(t, []string{"web"}, nil)
	writeSource(t, settings.Contexts[0], "app.conf", []byte("content"))

	// A second context whose source root does not exist.
	settings.Contexts = append(settings.Contexts, types.NewContext("ghost", settings.RepoStorage))

	_, err := New(settings, filesystem.NewOS(), nil).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrConfig))

	// Preconditions run before any write: the valid context's file was
	// not materialized either.
	_, err = os.Stat(filepath.Join(settings.DestinationRoot, "app.conf"))
	assert.True(t, os.IsNotExist(err))
}

func TestScopeAllWritesUnderDestinationRoot(t *testing.T) {
	settings := testSettings(t, []string{"web"}, nil)
	writeSource(t, settings.Contexts[0], filepath.Join("a", "b", "c.conf"), []byte("deep"))

	run(t, settings)

	var written []string
	err := filepath.WalkDir(settings.DestinationRoot, func(path string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		if !d.IsDir() {
			written = append(written, path)
		}
		return nil
	})
	require.NoError(t, err)

	for _, p := range written {
		rel, err := filepath.Rel(settings.DestinationRoot, p)
		require.NoError(t, err)
		assert.False(t, strings.HasPrefix(rel, ".."), "write %s escapes destination root", p)
	}
	assert.Len(t, written, 1)
}

func TestCreatedDirectoriesNormalized(t *testing.T) {
	settings := testSettings(t, []string{"web"}, nil)
	writeSource(t, settings.Contexts[0], filepath.Join("var", "lib", "app.conf"), []byte("x"))

	run(t, settings)

	for _, dir := range []string{"var", filepath.Join("var", "lib")} {
		info, err := os.Stat(filepath.Join(settings.DestinationRoot, dir))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
		assertOwnedByCurrent(t, info)
	}
}

func TestClassificationIsSourceDriven(t *testing.T) {
	settings := testSettings(t, []string{"web"}, map[string]string{"PORT": "1"})
	writeSource(t, settings.Contexts[0], "app.conf", []byte("port={{PORT}}"))

	// Pre-seed the destination with invalid UTF-8: classification must
	// come from the source, so templating still applies.
	dest := filepath.Join(settings.DestinationRoot, "app.conf")
	require.NoError(t, os.WriteFile(dest, []byte{0x00, 0xFF}, 0o644))

	summary := run(t, settings)
	assert.Equal(t, 1, summary.Replaced)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "port=1", string(data))
}

func TestSummaryCounts(t *testing.T) {
	settings := testSettings(t, []string{"web"}, map[string]string{"PORT": "8080"})
	writeSource(t, settings.Contexts[0], "one.conf", []byte("static"))
	writeSource(t, settings.Contexts[0], "two.conf", []byte("port={{PORT}}"))

	first := run(t, settings)
	assert.Equal(t, 2, first.Created)

	// Drift one file; rerun yields one replace and one no-op.
	require.NoError(t, os.WriteFile(filepath.Join(settings.DestinationRoot, "one.conf"), []byte("drifted"), 0o644))

	second := run(t, settings)
	assert.Equal(t, 1, second.Replaced)
	assert.Equal(t, 1, second.Unchanged)
	assert.Zero(t, second.Created)
}

func TestEnvFileVariablesReachRenderer(t *testing.T) {
	// Full resolver-to-renderer path: variables from an env-file are
	// visible in rendered output, with the process env winning.
	dest := t.TempDir()
	storage := t.TempDir()

	envFile := filepath.Join(t.TempDir(), "server.env")
	content := "PORT=8080\nUID=" + strconv.Itoa(os.Getuid()) + "\nGID=" + strconv.Itoa(os.Getgid()) + "\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	t.Setenv("SERVER_SYNC_DESTINATION", dest)
	t.Setenv("SERVER_SYNC_REPO_STORAGE", storage)
	t.Setenv("SERVER_SYNC_CONTEXTS", "web")
	t.Setenv("SERVER_SYNC_ENV", envFile)

	settings, err := config.Resolve(config.Options{})
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(settings.Contexts[0].SourceRoot, 0o755))
	writeSource(t, settings.Contexts[0], "app.conf", []byte("host={{server_name}}:{{PORT}}"))

	summary := run(t, settings)
	require.Zero(t, summary.Failed())

	data, err := os.ReadFile(filepath.Join(dest, "app.conf"))
	require.NoError(t, err)
	assert.Equal(t, "host=web:8080", string(data))
}
