package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"capsd/internal/api"
	"capsd/internal/config"
)

func newFetchCmd(cfg *config.Config, subject *string) *cobra.Command {
	var (
		variant  string
		assetID  string
		rawToken string
		outPath  string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "fetch <memory-id>",
		Short: "Download an asset through the gateway",
		Args:  requireExactlyArgs(1, "memory id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(outPath) == "" {
				return fmt.Errorf("--output is required")
			}
			if !force {
				if _, err := os.Stat(outPath); err == nil {
					return fmt.Errorf("output file exists (use --force to overwrite)")
				}
			}

			return withClient(cfg, *subject, func(client *api.Client) error {
				memoryID := args[0]

				// Without an explicit token, mint one on the spot. This is
				// what owners use; delegates pass a token they were handed.
				token := strings.TrimSpace(rawToken)
				if token == "" {
					minted, err := client.MintToken(cmd.Context(), api.MintTokenRequest{
						MemoryID: memoryID,
						Variants: []string{variant},
					})
					if err != nil {
						return err
					}
					token = minted.Token
				}

				f, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
				if err != nil {
					return err
				}
				defer f.Close()

				if _, err := client.FetchAsset(cmd.Context(), memoryID, variant, assetID, token, f); err != nil {
					return err
				}
				return writePlain("%s\n", outPath)
			})
		},
	}

	cmd.Flags().StringVar(&variant, "variant", "original", "asset variant to fetch")
	cmd.Flags().StringVar(&assetID, "asset", "", "fetch a specific asset id instead of resolving the variant")
	cmd.Flags().StringVar(&rawToken, "token", "", "capability token (default: mint one as the acting subject)")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite output path if it exists")
	return cmd
}
