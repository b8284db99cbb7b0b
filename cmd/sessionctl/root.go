package main

import (
	"fmt"

	"github.com/ghaditya/spotify-group-session/internal/adapters/store"
	"github.com/ghaditya/spotify-group-session/internal/app/orch"
	"github.com/ghaditya/spotify-group-session/internal/config"
	"github.com/ghaditya/spotify-group-session/internal/core"
	"github.com/spf13/cobra"
)

// app is wired once flags are parsed so --config can pick the store.
type app struct {
	store  core.MembershipStore
	engine *orch.Orchestrator
}

func wireApp(configFile string) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Store.Driver == config.DriverMemory {
		return nil, fmt.Errorf("store driver %q is process local, sessionctl needs %q", config.DriverMemory, config.DriverSQLite)
	}
	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &app{store: st, engine: orch.New(st, nil, nil, nil)}, nil
}

func newRootCmd() *cobra.Command {
	var (
		configFile string
		a          app
	)

	rootCmd := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Inspect and end group listening sessions",
		Long:          "sessionctl reads the membership store the server writes to. It can list sessions, show a session or a client, and force a session to end.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			wired, err := wireApp(configFile)
			if err != nil {
				return err
			}
			a = *wired
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if a.store == nil {
				return nil
			}
			return a.store.Close()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file (default config/config.$CONFIG_ENV.yaml)")

	rootCmd.AddCommand(
		newListCmd(&a),
		newShowCmd(&a),
		newStatusCmd(&a),
		newEndCmd(&a),
	)
	return rootCmd
}
