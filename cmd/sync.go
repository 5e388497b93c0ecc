package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mailgraph/pkg/ingestrun"
	"github.com/otherjamesbrown/mailgraph/pkg/logging"
	"github.com/otherjamesbrown/mailgraph/pkg/mailsync/provider"
)

func newSyncCommand() *cobra.Command {
	var userID string
	var providerName string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one C3 sync pass for a single user's mailbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			if providerName == "" {
				return fmt.Errorf("--provider is required (gmail, outlook, or imap)")
			}

			ctx := cmd.Context()
			d, err := newDeps(ctx, appCfg, logger)
			if err != nil {
				return err
			}
			defer d.close()

			adapter, err := d.fetcher.AdapterFor(ctx, userID, providerName)
			if err != nil {
				return fmt.Errorf("building provider adapter: %w", err)
			}

			handler := ingestrun.New(userID, provider.Name(providerName), d.graphRepo, d.qualifier, d.dispatcher, d.logger)

			result, err := d.coord.Sync(ctx, userID, adapter, handler.Handle)
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			logger.Info("sync complete",
				logging.F("user_id", userID),
				logging.F("provider", providerName),
				logging.F("messages_seen", result.MessagesSeen),
				logging.F("messages_fetched", result.MessagesFetched),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user ID to sync")
	cmd.Flags().StringVar(&providerName, "provider", "", "mail provider: gmail, outlook, or imap")
	return cmd
}
