package main

import (
	"github.com/spf13/cobra"

	"capsd/internal/api"
	"capsd/internal/config"
)

func newAdminCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}

	cmd.AddCommand(newAdminSweepCmd(cfg, jsonOutput))
	cmd.AddCommand(newAdminGCCmd(cfg, jsonOutput))
	cmd.AddCommand(newAdminUserCmd(cfg, jsonOutput))
	return cmd
}

func newAdminSweepCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim expired upload sessions and stale temp files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, "", func(client *api.Client) error {
				resp, err := client.AdminSweep(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("sessions_removed=%d temp_files_removed=%d\n", resp.SessionsRemoved, resp.TempFilesRemoved)
			})
		},
	}
}

func newAdminGCCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Garbage-collect unreferenced blobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, "", func(client *api.Client) error {
				resp, err := client.AdminGC(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("blobs_removed=%d bytes_freed=%d\n", resp.BlobsRemoved, resp.BytesFreed)
			})
		},
	}
}
