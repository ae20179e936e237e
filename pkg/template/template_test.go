package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/server-sync/pkg/errors"
)

func TestRenderExpandsVariables(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("app.conf", "host={{server_name}}:{{PORT}}"))

	out, err := r.Render("app.conf", map[string]string{"server_name": "web", "PORT": "8080"})
	require.NoError(t, err)
	assert.Equal(t, "host=web:8080", out)
}

func TestRenderStrictMissingVariable(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("app.conf", "value={{MISSING}}"))

	_, err := r.Render("app.conf", map[string]string{})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrRender))
}

func TestRenderUnregisteredName(t *testing.T) {
	r := NewRegistry()
	_, err := r.Render("ghost.conf", map[string]string{})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrRender))
}

func TestRegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("app.conf", "first"))
	require.NoError(t, r.Register("app.conf", "second"))

	out, err := r.Render("app.conf", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "second", out)
}

func TestRegisterSyntaxError(t *testing.T) {
	r := NewRegistry()
	err := r.Register("bad.conf", "unterminated {{tag")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrRender))
}

func TestNoHTMLEscaping(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("app.conf", "{{VALUE}}"))

	out, err := r.Render("app.conf", map[string]string{"VALUE": `<a href="x">&</a>`})
	require.NoError(t, err)
	assert.Equal(t, `<a href="x">&</a>`, out)
}

func TestVarsInjectsServerName(t *testing.T) {
	settings := map[string]string{"PORT": "8080", "server_name": "from-env"}

	vars := Vars(settings, "web")
	assert.Equal(t, "web", vars["server_name"])
	assert.Equal(t, "8080", vars["PORT"])

	// The settings map is copied, not mutated.
	assert.Equal(t, "from-env", settings["server_name"])
}
