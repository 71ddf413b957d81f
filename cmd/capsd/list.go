package main

import (
	"net/url"

	"github.com/spf13/cobra"

	"capsd/internal/api"
	"capsd/internal/config"
)

func newListCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	var (
		kind   string
		tag    string
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, *subject, func(client *api.Client) error {
				query := url.Values{}
				setIfNotEmpty(query, "kind", kind)
				setIfNotEmpty(query, "tag", tag)
				setIfNotEmpty(query, "cursor", cursor)
				if limit > 0 {
					query.Set("limit", intToString(limit))
				}

				resp, err := client.ListMemories(cmd.Context(), query)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				if err := writeMemoryList(resp.Memories); err != nil {
					return err
				}
				if resp.NextCursor != "" {
					return writePlain("next: %s\n", resp.NextCursor)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "kind filter")
	cmd.Flags().StringVarP(&tag, "tag", "t", "", "tag filter")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "resume from a previous page's next cursor")

	return cmd
}
