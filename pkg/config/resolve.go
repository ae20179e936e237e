package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/arthur-debert/server-sync/pkg/errors"
	"github.com/arthur-debert/server-sync/pkg/logging"
	"github.com/arthur-debert/server-sync/pkg/owner"
	"github.com/arthur-debert/server-sync/pkg/types"
)

// Resolve produces the frozen settings snapshot for this run. All
// failures are CONFIG errors and happen before any filesystem mutation.
func Resolve(opts Options) (*Settings, error) {
	logger := logging.GetLogger("config")

	// First pass without the env-file layer, to learn where the
	// env-file itself lives. Its location resolves through the same
	// chain as every other option.
	base, err := layered(opts, nil)
	if err != nil {
		return nil, err
	}
	envFile := base.String(KeyEnvFile)

	fileVals, err := readEnvFile(envFile)
	if err != nil {
		return nil, err
	}

	k, err := layered(opts, fileVals)
	if err != nil {
		return nil, err
	}

	storage := k.String(KeyRepoStorage)
	if storage == "" {
		return nil, errors.New(errors.ErrConfig, "repository storage path is not set")
	}

	dest := k.String(KeyDestination)
	if err := validateDestination(dest); err != nil {
		return nil, err
	}

	contexts, err := parseContexts(k.String(KeyContexts), storage)
	if err != nil {
		return nil, err
	}

	ownerSpec := lookupIdent(fileVals, "UID", "USER")
	groupSpec := lookupIdent(fileVals, "GID", "GROUP")
	identity, err := owner.Resolve(ownerSpec, groupSpec)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfig, "resolve owner identity")
	}

	settings := &Settings{
		DestinationRoot: dest,
		RepoStorage:     storage,
		RepoURL:         k.String(KeyRepo),
		Branch:          k.String(KeyBranch),
		EnvFile:         envFile,
		Contexts:        contexts,
		Variables:       buildVariables(fileVals),
		OwnerSpec:       ownerSpec,
		GroupSpec:       groupSpec,
		Identity:        identity,
	}

	logger.Debug().
		Str("destination", settings.DestinationRoot).
		Str("storage", settings.RepoStorage).
		Str("branch", settings.Branch).
		Int("contexts", len(settings.Contexts)).
		Int("variables", len(settings.Variables)).
		Msg("Settings resolved")

	return settings, nil
}

// layered builds the option chain lowest-first: embedded defaults, the
// process environment, env-file entries, explicit flags. Later loads
// win, which yields the required flag > env-file > env precedence.
func layered(opts Options, fileVals map[string]string) (*koanf.Koanf, error) {
	k := koanf.New(".")

	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfig, "load embedded defaults")
	}

	if err := k.Load(env.Provider("SERVER_SYNC_", ".", mapEnvKey), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfig, "load process environment")
	}

	if fileVals != nil {
		fileOpts := map[string]interface{}{}
		for name, value := range fileVals {
			if key, ok := envKeys[name]; ok {
				fileOpts[key] = value
			}
		}
		if err := k.Load(confmap.Provider(fileOpts, "."), nil); err != nil {
			return nil, errors.Wrap(err, errors.ErrConfig, "load env-file options")
		}
	}

	if err := k.Load(confmap.Provider(flagValues(opts), "."), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfig, "load flag options")
	}

	return k, nil
}

// mapEnvKey translates a SERVER_SYNC_* variable name to its option key.
// Returning "" drops variables outside the option surface.
func mapEnvKey(name string) string {
	return envKeys[name]
}

// flagValues returns the option values for explicitly-set flags only.
func flagValues(opts Options) map[string]interface{} {
	vals := map[string]interface{}{}
	if opts.Changed == nil {
		return vals
	}
	if opts.Changed[KeyEnvFile] {
		vals[KeyEnvFile] = opts.EnvFile
	}
	if opts.Changed[KeyRepo] {
		vals[KeyRepo] = opts.Repo
	}
	if opts.Changed[KeyBranch] {
		vals[KeyBranch] = opts.Branch
	}
	if opts.Changed[KeyDestination] {
		vals[KeyDestination] = opts.Destination
	}
	if opts.Changed[KeyRepoStorage] {
		vals[KeyRepoStorage] = opts.RepoStorage
	}
	if opts.Changed[KeyContexts] {
		vals[KeyContexts] = strings.Join(opts.Contexts, ",")
	}
	return vals
}

// readEnvFile loads KEY=VALUE pairs from the env-file. A missing file
// is tolerated: the file is optional and every option has other layers.
func readEnvFile(path string) (map[string]string, error) {
	logger := logging.GetLogger("config")

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			logger.Debug().Str("path", path).Msg("No env-file present")
			return map[string]string{}, nil
		}
		return nil, errors.Wrapf(err, errors.ErrConfig, "stat env-file %s", path)
	}

	vals, err := godotenv.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfig, "parse env-file %s", path)
	}
	logger.Debug().Str("path", path).Int("entries", len(vals)).Msg("Loaded env-file")
	return vals, nil
}

// parseContexts splits the context list on both "," and ";" (both
// separators appear in the wild), trims whitespace around names, and
// rejects empty names.
func parseContexts(raw, repoStorage string) ([]types.Context, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New(errors.ErrConfig, "no contexts to sync")
	}

	normalized := strings.ReplaceAll(raw, ";", ",")
	parts := strings.Split(normalized, ",")

	contexts := make([]types.Context, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name == "" {
			return nil, errors.Newf(errors.ErrConfig, "empty context name in %q", raw)
		}
		contexts = append(contexts, types.NewContext(name, repoStorage))
	}
	return contexts, nil
}

func validateDestination(dest string) error {
	if dest == "" {
		return errors.New(errors.ErrConfig, "destination root is not set")
	}
	if !filepath.IsAbs(dest) {
		return errors.Newf(errors.ErrConfig, "destination root %q is not an absolute path", dest)
	}
	if filepath.Clean(dest) == string(filepath.Separator) {
		return errors.New(errors.ErrConfig, "destination root must not be the filesystem root")
	}
	info, err := os.Stat(dest)
	if err != nil {
		return errors.Wrapf(err, errors.ErrConfig, "destination root %s", dest)
	}
	if !info.IsDir() {
		return errors.Newf(errors.ErrConfig, "destination root %s is not a directory", dest)
	}
	return nil
}

// buildVariables unions env-file entries with the process environment;
// the process environment wins on conflict.
func buildVariables(fileVals map[string]string) map[string]string {
	vars := make(map[string]string, len(fileVals))
	for k, v := range fileVals {
		vars[k] = v
	}
	for _, entry := range os.Environ() {
		if name, value, ok := strings.Cut(entry, "="); ok {
			vars[name] = value
		}
	}
	return vars
}

// lookupIdent resolves an identity spec from the env-file first, then
// the process environment, trying keys in order.
func lookupIdent(fileVals map[string]string, keys ...string) string {
	for _, key := range keys {
		if v, ok := fileVals[key]; ok && v != "" {
			return v
		}
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
