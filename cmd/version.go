package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mailgraph/pkg/buildinfo"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print mailgraph's build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildinfo.Get("mailgraph")
			fmt.Fprintf(cmd.OutOrStdout(), "mailgraph %s\n  go: %s\n", buildinfo.String(), info.GoVersion)
			return nil
		},
	}
}
