package cmd

import (
	"fmt"

	"github.com/prometheus/common/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	// Skip config loading so version works without a config file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		if isTable() {
			fmt.Fprintln(cmd.OutOrStdout(), version.Print("dreamina"))
			return nil
		}
		return render(cmd.OutOrStdout(), map[string]string{
			"version":    version.Version,
			"revision":   version.Revision,
			"branch":     version.Branch,
			"build_user": version.BuildUser,
			"build_date": version.BuildDate,
			"go_version": version.GoVersion,
		}, nil)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
