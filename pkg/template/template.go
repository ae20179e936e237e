// Package template renders text files through a mustache engine.
//
// Templates register under the basename of their source file; later
// registrations overwrite earlier ones. Rendering is strict (a missing
// variable is an error) and HTML escaping is disabled, so output is the
// verbatim expansion.
package template

import (
	"github.com/cbroglie/mustache"

	"github.com/arthur-debert/server-sync/pkg/errors"
	"github.com/arthur-debert/server-sync/pkg/logging"
)

// Registry is an owned, per-run collection of parsed templates. It is
// not safe for concurrent use; the pipeline is sequential.
type Registry struct {
	templates map[string]*mustache.Template
}

// NewRegistry creates an empty template registry.
func NewRegistry() *Registry {
	// The engine's strict-mode switch is package-global; missing
	// variables must fail the render rather than expand to "".
	mustache.AllowMissingVariables = false

	return &Registry{templates: make(map[string]*mustache.Template)}
}

// Register parses text and stores it under name, replacing any template
// previously registered under the same name.
func (r *Registry) Register(name, text string) error {
	logger := logging.GetLogger("template")

	// forceRaw disables HTML escaping; {{x}} and {{{x}}} expand alike.
	tmpl, err := mustache.ParseStringRaw(text, true)
	if err != nil {
		return errors.Wrapf(err, errors.ErrRender, "parse template %q", name)
	}

	if _, exists := r.templates[name]; exists {
		logger.Debug().Str("name", name).Msg("Overwriting registered template")
	}
	r.templates[name] = tmpl
	return nil
}

// Render expands the named template against vars. A reference to a name
// absent from vars fails with a RENDER error.
func (r *Registry) Render(name string, vars map[string]string) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", errors.Newf(errors.ErrRender, "template %q is not registered", name)
	}

	out, err := tmpl.Render(vars)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrRender, "render template %q", name)
	}
	return out, nil
}

// Vars builds the variable map for one render: a copy of the settings
// variables with server_name set to the context name, shadowing any
// environment entry of the same name for the duration of the render.
func Vars(settings map[string]string, contextName string) map[string]string {
	vars := make(map[string]string, len(settings)+1)
	for k, v := range settings {
		vars[k] = v
	}
	vars["server_name"] = contextName
	return vars
}
