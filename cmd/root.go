// Package cmd implements mailgraph's command-line surface: the serve,
// sync, migrate, config, and version subcommands wiring together C1-C9.
// Grounded on the teacher's cobra main.go (a root command with
// PersistentPreRunE config loading, command groups, and graceful
// shutdown via signal.Notify), scaled down to this service's much
// smaller operation set.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mailgraph/config"
	"github.com/otherjamesbrown/mailgraph/pkg/logging"
)

var (
	debug bool

	appCfg *config.AppConfig
	logger logging.Logger
)

// NewRootCommand builds the mailgraph root command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "mailgraph",
		Short: "Mailgraph ingestion and extraction core",
		Long: "mailgraph turns a user's email account into a queryable knowledge graph\n" +
			"of business documents: invoices, receipts, statements, and contracts.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if debug {
				cfg.Debug = true
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			appCfg = cfg

			logCfg := logging.DefaultConfig()
			logCfg.ServiceName = "mailgraph"
			if cfg.Debug {
				logCfg.Level = logging.LevelDebug
			}
			logger = logging.NewLogger(logCfg)
			return nil
		},
	}

	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddGroup(
		&cobra.Group{ID: "ingestion", Title: "Ingestion:"},
		&cobra.Group{ID: "ops", Title: "Operations:"},
	)

	serve := newServeCommand()
	serve.GroupID = "ingestion"
	sync := newSyncCommand()
	sync.GroupID = "ingestion"
	migrate := newMigrateCommand()
	migrate.GroupID = "ops"
	cfgCmd := newConfigCommand()
	cfgCmd.GroupID = "ops"
	version := newVersionCommand()
	version.GroupID = "ops"

	root.AddCommand(serve, sync, migrate, cfgCmd, version)
	return root
}
