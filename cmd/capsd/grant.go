package main

import (
	"context"

	"github.com/spf13/cobra"

	"capsd/internal/api"
	"capsd/internal/config"
)

func newGrantCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Manage read grants on the caller's capsule",
	}
	cmd.AddCommand(
		newGrantAddCmd(cfg, subject, jsonOutput),
		newGrantRemoveCmd(cfg, subject, jsonOutput),
		newGrantListCmd(cfg, subject, jsonOutput),
	)
	return cmd
}

// ownCapsuleID resolves the caller's capsule, since grant routes are
// addressed by capsule id.
func ownCapsuleID(ctx context.Context, client *api.Client) (string, error) {
	capsule, err := client.GetCapsule(ctx)
	if err != nil {
		return "", err
	}
	return capsule.ID, nil
}

func newGrantAddCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "add <subject>",
		Short: "Allow another subject to read this capsule",
		Args:  requireExactlyArgs(1, "subject is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, *subject, func(client *api.Client) error {
				capsuleID, err := ownCapsuleID(cmd.Context(), client)
				if err != nil {
					return err
				}
				if err := client.AddGrant(cmd.Context(), capsuleID, api.GrantRequest{Subject: args[0]}); err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(map[string]any{"capsule_id": capsuleID, "subject": args[0]})
				}
				return writePlain("granted read access to %s\n", args[0])
			})
		},
	}
}

func newGrantRemoveCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <subject>",
		Aliases: []string{"remove"},
		Short:   "Revoke a subject's read access",
		Args:    requireExactlyArgs(1, "subject is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, *subject, func(client *api.Client) error {
				capsuleID, err := ownCapsuleID(cmd.Context(), client)
				if err != nil {
					return err
				}
				if err := client.RemoveGrant(cmd.Context(), capsuleID, api.GrantRequest{Subject: args[0]}); err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(map[string]any{"capsule_id": capsuleID, "subject": args[0]})
				}
				return writePlain("revoked read access from %s\n", args[0])
			})
		},
	}
}

func newGrantListCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List subjects with read access to this capsule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, *subject, func(client *api.Client) error {
				capsuleID, err := ownCapsuleID(cmd.Context(), client)
				if err != nil {
					return err
				}
				grants, err := client.ListGrants(cmd.Context(), capsuleID)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(grants)
				}
				if len(grants.Subjects) == 0 {
					return writePlain("no grants\n")
				}
				for _, grantee := range grants.Subjects {
					if err := writePlain("%s\n", grantee); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
