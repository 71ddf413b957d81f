package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"capsd/internal/api"
	"capsd/internal/config"
)

type createCmdOptions struct {
	kind        string
	contentType string
	tags        []string
	filePath    string
	customKV    []string
	customJSON  string
}

func newCreateCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	opts := &createCmdOptions{}
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a new memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd, cfg, opts, subject, jsonOutput, args)
		},
	}

	bindCreateFlags(cmd, opts)
	return cmd
}

func runCreate(cmd *cobra.Command, cfg *config.Config, opts *createCmdOptions, subject *string, jsonOutput *bool, args []string) error {
	return withClient(cfg, *subject, func(client *api.Client) error {
		if opts.filePath != "" {
			return runCreateFromFile(cmd.Context(), client, opts.filePath, jsonOutput)
		}

		req, err := buildCreateRequest(opts, args)
		if err != nil {
			return err
		}

		memory, err := client.CreateMemory(cmd.Context(), req)
		if err != nil {
			return err
		}
		if *jsonOutput {
			return writeJSON(memory)
		}
		return writePlain("%s\n", memory.ID)
	})
}

func buildCreateRequest(opts *createCmdOptions, args []string) (api.CreateMemoryRequest, error) {
	if len(args) == 0 {
		return api.CreateMemoryRequest{}, errors.New("title is required")
	}
	if strings.TrimSpace(opts.kind) == "" {
		return api.CreateMemoryRequest{}, errors.New("kind is required")
	}

	req := api.CreateMemoryRequest{
		Kind:        opts.kind,
		Title:       strings.Join(args, " "),
		ContentType: opts.contentType,
		Tags:        opts.tags,
	}
	if len(opts.customKV) > 0 || opts.customJSON != "" {
		m, err := parseCustomFlags(opts.customKV, opts.customJSON)
		if err != nil {
			return api.CreateMemoryRequest{}, err
		}
		req.Custom = m
	}

	return req, nil
}

func bindCreateFlags(cmd *cobra.Command, opts *createCmdOptions) {
	cmd.Flags().StringVarP(&opts.kind, "kind", "k", "", "memory kind (image, video, audio, document, note)")
	cmd.Flags().StringVar(&opts.contentType, "content-type", "", "content type of the primary payload")
	cmd.Flags().StringSliceVarP(&opts.tags, "tag", "t", nil, "tag (repeatable)")
	cmd.Flags().StringVarP(&opts.filePath, "file", "f", "", "markdown file for batch create")
	cmd.Flags().StringSliceVar(&opts.customKV, "custom", nil, "custom field key=value (repeatable)")
	cmd.Flags().StringVar(&opts.customJSON, "custom-json", "", "custom fields as JSON object")
}

// runCreateFromFile creates one memory per markdown list item, with front
// matter supplying the shared fields.
func runCreateFromFile(ctx context.Context, client *api.Client, filePath string, jsonOutput *bool) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	frontMatter, items, err := parseMarkdown(string(data))
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no list items found in %s", filePath)
	}

	defaults, err := frontMatterToRequest(frontMatter)
	if err != nil {
		return err
	}
	if strings.TrimSpace(defaults.Kind) == "" {
		return fmt.Errorf("front matter must set kind")
	}

	created := make([]api.Memory, 0, len(items))
	for _, item := range items {
		req := defaults
		req.Title = item
		memory, err := client.CreateMemory(ctx, req)
		if err != nil {
			return err
		}
		created = append(created, memory)
	}

	if *jsonOutput {
		return writeJSON(created)
	}
	for _, memory := range created {
		if err := writePlain("%s\n", memory.ID); err != nil {
			return err
		}
	}
	return nil
}
