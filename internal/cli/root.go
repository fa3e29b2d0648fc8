package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/eduardojeem/repairboard/internal/config"
	"github.com/eduardojeem/repairboard/internal/prefs"
	"github.com/eduardojeem/repairboard/pkg/client"
)

type globalFlags struct {
	url        string
	apiKey     string
	localPrefs bool
	verbose    bool
}

type sessionKey struct{}

// session is what every subcommand needs after the root pre-run: the loaded config and overrides.
type session struct {
	home  string
	cfg   config.Config
	flags globalFlags
	log   *slog.Logger
}

func sessionFrom(cmd *cobra.Command) *session {
	if rt, ok := cmd.Context().Value(sessionKey{}).(*session); ok {
		return rt
	}
	panic("repairboard session missing from context")
}

// client talks to the server at --url, REPAIRBOARD_URL or client.url.
func (rt *session) client() *client.Client {
	url := rt.cfg.Client.URL
	if rt.flags.url != "" {
		url = rt.flags.url
	}
	key := rt.cfg.Server.APIKey
	if rt.flags.apiKey != "" {
		key = rt.flags.apiKey
	}
	return client.New(url, key)
}

// collapseStore keeps collapsed columns on the server, or in home/prefs.yaml with --local-prefs.
func (rt *session) collapseStore() *prefs.CollapseStore {
	var backend prefs.Backend = rt.client()
	if rt.flags.localPrefs {
		backend = prefs.NewFileBackend(prefs.DefaultFilePath(rt.home))
	}
	return &prefs.CollapseStore{Backend: backend, Logger: rt.log}
}

func NewRootCmd(version string) *cobra.Command {
	var (
		homeOverride string
		flags        globalFlags
	)

	cmd := &cobra.Command{
		Use:          "repairboard",
		Short:        "repairboard: Kanban workflow for a device repair shop",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			home, err := config.ResolveHome(homeOverride)
			if err != nil {
				return err
			}
			cfg, err := config.Load(home)
			if err != nil {
				return err
			}
			level := slog.LevelWarn
			if flags.verbose {
				level = slog.LevelDebug
			}
			log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			ctx := context.WithValue(cmd.Context(), sessionKey{}, &session{home: home, cfg: cfg, flags: flags, log: log})
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&homeOverride, "home", "", "Override repairboard home directory (default: ~/.repairboard, env: REPAIRBOARD_HOME)")
	cmd.PersistentFlags().StringVar(&flags.url, "url", "", "Server URL (default: client.url in config.yaml, env: REPAIRBOARD_URL)")
	cmd.PersistentFlags().StringVar(&flags.apiKey, "api-key", "", "API key sent as X-API-Key (env: REPAIRBOARD_API_KEY)")
	cmd.PersistentFlags().BoolVar(&flags.localPrefs, "local-prefs", false, "Keep collapsed columns in the home directory instead of on the server")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log debug output to stderr")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())

	cmd.AddCommand(newOrdersCmd())
	cmd.AddCommand(newBoardCmd())
	cmd.AddCommand(newMoveCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newColumnsCmd())
	cmd.AddCommand(newApikeyCmd())

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}

	return cmd
}
