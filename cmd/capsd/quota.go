package main

import (
	"github.com/spf13/cobra"

	"capsd/internal/api"
	"capsd/internal/config"
)

func newQuotaCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show the caller's quota consumption",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, *subject, func(client *api.Client) error {
				resp, err := client.GetQuota(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				_ = writePlain("subject: %s\n", resp.Subject)
				_ = writePlain("active_sessions: %d / %d\n", resp.ActiveSessions, resp.MaxSessions)
				_ = writePlain("commits_today: %d / %d\n", resp.CommitsToday, resp.MaxCommitsDay)
				_ = writePlain("stored_bytes: %d / %d\n", resp.StoredBytes, resp.MaxStoredBytes)
				return nil
			})
		},
	}
}
