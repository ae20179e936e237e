// Package config resolves the frozen settings snapshot for a run.
//
// Every option resolves through the same chain, highest wins: explicit
// CLI flag, then the .server_env env-file, then the process
// environment, then embedded defaults. The chain is realized as koanf
// layers loaded lowest-first. The variable map handed to the renderer
// is a separate union of env-file entries and the process environment,
// with the process environment winning on conflict.
//
// Settings are read-only after resolution; no component mutates them.
package config
