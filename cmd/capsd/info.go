package main

import (
	"github.com/spf13/cobra"

	"capsd/internal/api"
	"capsd/internal/config"
)

func newInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show server limits and version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, "", func(client *api.Client) error {
				resp, err := client.GetInfo(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				_ = writePlain("version: %s\n", resp.Version)
				_ = writePlain("max_upload_bytes: %d\n", resp.MaxUploadBytes)
				_ = writePlain("chunk_size_bytes: %d\n", resp.ChunkSizeBytes)
				_ = writePlain("session_timeout_seconds: %d\n", resp.SessionTimeout)
				return nil
			})
		},
	}
}
