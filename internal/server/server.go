package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"capsd/internal/blobstore"
	"capsd/internal/config"
	"capsd/internal/store"
	"capsd/internal/token"
)

const (
	adminTokenEnvKey  = "CAPSD_ADMIN_TOKEN"
	allowRemoteEnvKey = "CAPSD_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 60 * time.Second
	writeTimeout      = 120 * time.Second
	idleTimeout       = 60 * time.Second
)

// Server wraps HTTP handlers for the capsd API.
type Server struct {
	addr       string
	cfg        *config.Config
	store      *store.Store
	blobs      blobstore.BlobStore
	acl        *ACLEvaluator
	uploads    *UploadService
	gateway    *AssetGateway
	tokens     *token.Service
	logger     *slog.Logger
	adminToken string

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// New creates a new server instance.
func New(addr string, cfg *config.Config, st *store.Store, blobs blobstore.BlobStore, tokens *token.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	acl := NewACLEvaluator(st)
	return &Server{
		addr:       addr,
		cfg:        cfg,
		store:      st,
		blobs:      blobs,
		acl:        acl,
		uploads:    NewUploadService(st, blobs, acl, cfg.Uploads, cfg.Quotas),
		gateway:    NewAssetGateway(st, blobs, tokens),
		tokens:     tokens,
		logger:     logger,
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
	}
}

// ListenAndServe starts the HTTP server and the background expiry sweeper.
func (s *Server) ListenAndServe() error {
	s.log().Info("starting server", "addr", s.addr)
	s.startSweeper()
	defer s.stopSweeper()

	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.withRequestLogging(s.routes()),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	return server.ListenAndServe()
}

func (s *Server) startSweeper() {
	interval := s.cfg.Uploads.SweepInterval()
	if interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.sweepCancel = cancel
	s.sweepDone = make(chan struct{})

	go func() {
		defer close(s.sweepDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessions, tempFiles, err := s.uploads.Sweep(ctx)
				if err != nil {
					s.log().Error("expiry sweep failed", "error", err)
					continue
				}
				if sessions > 0 || tempFiles > 0 {
					s.log().Info("expiry sweep", "sessions_removed", sessions, "temp_files_removed", tempFiles)
				}
			}
		}
	}()
}

func (s *Server) stopSweeper() {
	if s.sweepCancel == nil {
		return
	}
	s.sweepCancel()
	<-s.sweepDone
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
