package main

import (
	"github.com/spf13/cobra"

	"capsd/internal/api"
	"capsd/internal/config"
)

func newShowCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show memory details",
		Args:  requireExactlyArgs(1, "memory id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, *subject, func(client *api.Client) error {
				memory, err := client.GetMemory(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(memory)
				}
				return writeMemoryDetail(memory)
			})
		},
	}
}

func newRemoveCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove", "delete"},
		Short:   "Delete a memory and its assets",
		Args:    requireExactlyArgs(1, "memory id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, *subject, func(client *api.Client) error {
				if err := client.DeleteMemory(cmd.Context(), args[0]); err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(map[string]any{"id": args[0], "deleted": true})
				}
				return writePlain("%s\n", args[0])
			})
		},
	}
}

func newAssetsCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "assets <id>",
		Short: "List the assets of a memory",
		Args:  requireExactlyArgs(1, "memory id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, *subject, func(client *api.Client) error {
				assets, err := client.ListAssets(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(assets)
				}
				return writeAssetList(assets)
			})
		},
	}
}
