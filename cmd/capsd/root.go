package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"capsd/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		subject    string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "capsd",
		Short: "Capsd is a multi-tenant artifact store with chunked uploads and capability tokens",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel)
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
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&subject, "subject", "", "acting subject (default: CAPSD_SUBJECT)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newCapsuleCmd(cfg, &subject, &jsonOutput),
		newGrantCmd(cfg, &subject, &jsonOutput),
		newCreateCmd(cfg, &subject, &jsonOutput),
		newShowCmd(cfg, &subject, &jsonOutput),
		newListCmd(cfg, &subject, &jsonOutput),
		newRemoveCmd(cfg, &subject, &jsonOutput),
		newAssetsCmd(cfg, &subject, &jsonOutput),
		newUploadCmd(cfg, &subject, &jsonOutput),
		newFetchCmd(cfg, &subject),
		newTokenCmd(cfg, &subject, &jsonOutput),
		newQuotaCmd(cfg, &subject, &jsonOutput),
		newInfoCmd(cfg, &jsonOutput),
		newConfigCmd(cfg),
		newAdminCmd(cfg, &jsonOutput),
	)

	return cmd
}
