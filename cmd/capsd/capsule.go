package main

import (
	"github.com/spf13/cobra"

	"capsd/internal/api"
	"capsd/internal/config"
)

func newCapsuleCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capsule",
		Short: "Manage the caller's capsule",
	}
	cmd.AddCommand(
		newCapsuleInitCmd(cfg, subject, jsonOutput),
		newCapsuleShowCmd(cfg, subject, jsonOutput),
	)
	return cmd
}

func newCapsuleInitCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the caller's capsule if it does not exist yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, *subject, func(client *api.Client) error {
				resp, err := client.EnsureCapsule(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				state := "exists"
				if resp.Created {
					state = "created"
				}
				return writePlain("%s %s\n", resp.Capsule.ID, state)
			})
		},
	}
}

func newCapsuleShowCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the caller's capsule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, *subject, func(client *api.Client) error {
				capsule, err := client.GetCapsule(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(capsule)
				}
				return writeCapsuleDetail(capsule)
			})
		},
	}
}
