package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"capsd/internal/api"
	"capsd/internal/config"
)

func newUploadCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Manage chunked uploads",
	}
	cmd.AddCommand(
		newUploadAddCmd(cfg, subject, jsonOutput),
		newUploadCancelCmd(cfg, subject, jsonOutput),
	)
	return cmd
}

func newUploadAddCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	var (
		variant     string
		contentType string
	)

	cmd := &cobra.Command{
		Use:   "add <memory-id> <path>",
		Short: "Upload a file as an asset of a memory",
		Args:  requireExactlyArgs(2, "memory id and path are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, *subject, func(client *api.Client) error {
				return uploadFile(cmd.Context(), client, args[0], args[1], variant, contentType, *jsonOutput)
			})
		},
	}

	cmd.Flags().StringVar(&variant, "variant", "original", "asset variant (original, thumbnail, preview)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "media type (default: derived from file extension)")
	return cmd
}

func newUploadCancelCmd(cfg *config.Config, subject *string, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Cancel an upload session",
		Args:  requireExactlyArgs(1, "session id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, *subject, func(client *api.Client) error {
				if err := client.CancelUpload(cmd.Context(), args[0]); err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(map[string]any{"session_id": args[0], "cancelled": true})
				}
				return writePlain("%s\n", args[0])
			})
		},
	}
}

// uploadFile drives one full upload: hash the file, declare the session,
// stream the chunks, commit.
func uploadFile(ctx context.Context, client *api.Client, memoryID, path, variant, contentType string, jsonOutput bool) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}
	if stat.Size() == 0 {
		return fmt.Errorf("refusing to upload empty file %s", path)
	}

	digest, err := hashFile(file)
	if err != nil {
		return err
	}

	info, err := client.GetInfo(ctx)
	if err != nil {
		return err
	}
	chunkSize := info.ChunkSizeBytes
	if chunkSize <= 0 {
		return fmt.Errorf("server reported invalid chunk size %d", chunkSize)
	}
	chunkCount := int((stat.Size() + chunkSize - 1) / chunkSize)

	if strings.TrimSpace(contentType) == "" {
		contentType = mime.TypeByExtension(filepath.Ext(path))
	}

	begin, err := client.BeginUpload(ctx, api.BeginUploadRequest{
		MemoryID:       memoryID,
		Variant:        variant,
		ContentType:    contentType,
		ExpectedSHA256: digest,
		ChunkCount:     chunkCount,
		TotalSize:      stat.Size(),
	})
	if err != nil {
		return err
	}
	if begin.AlreadyExists {
		if jsonOutput {
			return writeJSON(begin)
		}
		return writePlain("%s already-exists\n", begin.AssetID)
	}

	if err := sendChunks(ctx, client, file, begin.SessionID, chunkSize, chunkCount); err != nil {
		// Best effort: do not leave a half-filled session behind.
		_ = client.CancelUpload(ctx, begin.SessionID)
		return err
	}

	committed, err := client.CommitUpload(ctx, begin.SessionID, api.CommitUploadRequest{FinalSHA256: digest})
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(committed)
	}
	return writePlain("%s\n", committed.Asset.ID)
}

func hashFile(file *os.File) (string, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func sendChunks(ctx context.Context, client *api.Client, file *os.File, sessionID string, chunkSize int64, chunkCount int) error {
	buf := make([]byte, chunkSize)
	for index := 0; index < chunkCount; index++ {
		n, err := io.ReadFull(file, buf)
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			// Last chunk is allowed to be short.
			err = nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("file shrank while uploading")
		}
		if _, err := client.PutChunk(ctx, sessionID, index, buf[:n]); err != nil {
			return err
		}
	}
	return nil
}
