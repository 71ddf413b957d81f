package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"capsd/internal/blobstore"
	"capsd/internal/config"
	"capsd/internal/server"
	"capsd/internal/store"
	"capsd/internal/token"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the capsd API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}
			if len(cfg.Tokens.Keys) == 0 {
				return fmt.Errorf("a token signing key is required (set CAPSD_TOKEN_KEY or tokens.keys)")
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			logger.Info("opening database", "path", cfg.DBPath)
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			blobRoot := cfg.Blobs.Root
			if blobRoot == "" {
				blobRoot = filepath.Join(filepath.Dir(cfg.DBPath), ".capsd", "blobs")
			}
			bs, err := blobstore.NewLocalCAS(blobRoot)
			if err != nil {
				return err
			}

			tokens, err := token.NewService(cfg.Tokens.Keys, cfg.Tokens.ActiveKeyID, cfg.Tokens.Issuer, cfg.Tokens.MaxTTL())
			if err != nil {
				return err
			}

			server.Version = version
			srv := server.New(addr, cfg, st, bs, tokens, logger)
			return srv.ListenAndServe()
		},
	}
}
