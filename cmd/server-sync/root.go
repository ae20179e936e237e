package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/server-sync/internal/version"
	"github.com/arthur-debert/server-sync/pkg/config"
	"github.com/arthur-debert/server-sync/pkg/core"
	"github.com/arthur-debert/server-sync/pkg/errors"
	"github.com/arthur-debert/server-sync/pkg/fetch"
	"github.com/arthur-debert/server-sync/pkg/filesystem"
	"github.com/arthur-debert/server-sync/pkg/logging"
)

var (
	verbosity   int
	envFile     string
	repoURL     string
	repoBranch  string
	destination string
	contexts    []string
	repoStorage string

	rootCmd = &cobra.Command{
		Use:   "server-sync",
		Short: "Materialize server configuration trees from a git repository",
		Long: `server-sync pulls a configuration repository, renders each context's
files through mustache templates using environment-derived variables,
and atomically updates the destination tree, keeping a .bak sidecar for
every file it replaces.

Every flag also resolves from the .server_env env-file and from
SERVER_SYNC_* environment variables; explicit flags win.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		RunE:          runSync,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v DEBUG, -vv TRACE)")

	rootCmd.Flags().StringVarP(&envFile, "env-file", "e", "", "Path to the env-file (default .server_env)")
	rootCmd.Flags().StringVarP(&repoURL, "repo", "r", "", "Remote repository URL")
	rootCmd.Flags().StringVarP(&repoBranch, "branch", "b", "", "Repository branch (default master)")
	rootCmd.Flags().StringVarP(&destination, "dest", "d", "", "Destination root directory")
	rootCmd.Flags().StringArrayVarP(&contexts, "contexts", "c", nil, "Context names (repeatable, or a ','/';' separated list)")
	rootCmd.Flags().StringVar(&repoStorage, "repo-storage", "", "Local checkout path (default /tmp/server-sync/)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("server-sync version %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
	},
}

func runSync(cmd *cobra.Command, args []string) error {
	settings, err := config.Resolve(config.Options{
		EnvFile:     envFile,
		Repo:        repoURL,
		Branch:      repoBranch,
		Destination: destination,
		RepoStorage: repoStorage,
		Contexts:    contexts,
		Changed:     changedFlags(cmd),
	})
	if err != nil {
		return err
	}

	fetcher := fetch.New(settings.RepoStorage, settings.RepoURL, settings.Branch)
	syncer := core.New(settings, filesystem.NewOS(), fetcher)

	summary, err := syncer.Run(cmd.Context())
	if err != nil {
		return err
	}

	if failed := summary.Failed(); failed > 0 {
		return errors.Newf(errors.ErrPartial, "%d file(s) failed to reconcile", failed)
	}

	log.Info().Msg("Done!")
	return nil
}

// changedFlags maps option keys to whether their flag was explicitly
// set; unset flags stay out of the resolution chain.
func changedFlags(cmd *cobra.Command) map[string]bool {
	return map[string]bool{
		config.KeyEnvFile:     cmd.Flags().Changed("env-file"),
		config.KeyRepo:        cmd.Flags().Changed("repo"),
		config.KeyBranch:      cmd.Flags().Changed("branch"),
		config.KeyDestination: cmd.Flags().Changed("dest"),
		config.KeyContexts:    cmd.Flags().Changed("contexts"),
		config.KeyRepoStorage: cmd.Flags().Changed("repo-storage"),
	}
}
