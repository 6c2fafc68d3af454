package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"evidencevault/internal/config"
)

// cliOptions are the persistent flags shared by every subcommand.
type cliOptions struct {
	jsonOutput bool
	logLevel   string
	actorID    string
	actorRole  string
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:           "evidencevault",
		Short:         "Evidence blob store with a tamper-evident chain of custody",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(opts.logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.actorID, "actor", "", "actor id sent with API requests")
	cmd.PersistentFlags().StringVar(&opts.actorRole, "role", "", "actor role sent with API requests")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newMigrateCmd(cfg, opts),
		newConfigCmd(cfg),
		newUploadCmd(cfg, opts),
		newDownloadCmd(cfg, opts),
		newShowCmd(cfg, opts),
		newCaseCmd(cfg, opts),
		newDeleteCmd(cfg, opts),
		newStatusCmd(cfg, opts),
		newCustodyCmd(cfg, opts),
		newSweepCmd(cfg, opts),
	)

	return cmd
}
