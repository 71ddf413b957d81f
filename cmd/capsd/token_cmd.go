package main

import (
	"github.com/spf13/cobra"

	"capsd/internal/api"
	"capsd/internal/config"
)

func newTokenCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint capability tokens",
	}
	cmd.AddCommand(
		newTokenMintCmd(cfg, subject, jsonOutput),
		newTokenBulkCmd(cfg, subject, jsonOutput),
	)
	return cmd
}

func newTokenMintCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	var (
		variants   []string
		assetIDs   []string
		ttlSeconds int
	)

	cmd := &cobra.Command{
		Use:   "mint <memory-id>",
		Short: "Mint a read token for one memory",
		Args:  requireExactlyArgs(1, "memory id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, *subject, func(client *api.Client) error {
				resp, err := client.MintToken(cmd.Context(), api.MintTokenRequest{
					MemoryID:   args[0],
					Variants:   variants,
					AssetIDs:   assetIDs,
					TTLSeconds: ttlSeconds,
				})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("%s\n", resp.Token)
			})
		},
	}

	bindTokenScopeFlags(cmd, &variants, &assetIDs, &ttlSeconds)
	return cmd
}

func newTokenBulkCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	var (
		variants   []string
		assetIDs   []string
		ttlSeconds int
	)

	cmd := &cobra.Command{
		Use:   "bulk <memory-id> [<memory-id>...]",
		Short: "Mint read tokens for several memories at once",
		Args:  requireAtLeastArgs(1, "at least one memory id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, *subject, func(client *api.Client) error {
				resp, err := client.MintTokensBulk(cmd.Context(), api.MintTokensBulkRequest{
					MemoryIDs:  args,
					Variants:   variants,
					AssetIDs:   assetIDs,
					TTLSeconds: ttlSeconds,
				})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				for _, grant := range resp.Tokens {
					if err := writePlain("%s %s\n", grant.MemoryID, grant.Token); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	bindTokenScopeFlags(cmd, &variants, &assetIDs, &ttlSeconds)
	return cmd
}

func bindTokenScopeFlags(cmd *cobra.Command, variants, assetIDs *[]string, ttlSeconds *int) {
	cmd.Flags().StringSliceVar(variants, "variant", []string{"original"}, "variant the token may fetch (repeatable)")
	cmd.Flags().StringSliceVar(assetIDs, "asset", nil, "restrict the token to specific asset ids (repeatable)")
	cmd.Flags().IntVar(ttlSeconds, "ttl", 0, "token lifetime in seconds (default: server default)")
}
