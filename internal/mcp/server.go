// Package mcp provides an MCP (Model Context Protocol) server for cdnet.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/cdnet/internal/config"
	"github.com/nvandessel/cdnet/internal/logging"
	"github.com/nvandessel/cdnet/internal/pathutil"
	"github.com/nvandessel/cdnet/internal/ratelimit"
	"github.com/nvandessel/cdnet/internal/session"
	"github.com/nvandessel/cdnet/internal/store"
)

// Server wraps the MCP SDK server and provides cdnet-specific functionality.
type Server struct {
	server       *sdk.Server
	session      *session.Session
	sandbox      *pathutil.Sandbox
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "cdnet")
	Version string // Server version
	Root    string // Working directory; relative tool paths resolve against it

	// ConfigDir holds the audit and trace logs. Defaults to ~/.cdnet.
	ConfigDir string

	// Settings defaults to config.Load().
	Settings *config.CdnetConfig

	Logger *slog.Logger
}

// NewServer creates a new MCP server with cdnet tools. File arguments are
// confined to Root and ConfigDir. The integral cache lives as long as the
// server, so repeated runs over the same inputs reuse integrals.
func NewServer(cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		settings = loaded
	}

	configDir := cfg.ConfigDir
	if configDir == "" {
		dir, err := config.Dir()
		if err != nil {
			return nil, err
		}
		configDir = dir
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger(settings.Logging.Level, os.Stderr)
	}

	sandbox, err := pathutil.NewSandbox(cfg.Root, cfg.Root, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create path sandbox: %w", err)
	}

	var archive *store.Archive
	if settings.Archive.Path != "" {
		archive, err = store.Open(settings.Archive.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open run archive: %w", err)
		}
	}

	sess, err := session.New(session.Options{
		Settings: settings,
		Logger:   logger,
		Trace:    logging.NewTraceLogger(configDir, settings.Logging.Level),
		Archive:  archive,
	})
	if err != nil {
		if archive != nil {
			archive.Close()
		}
		return nil, err
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:       mcpServer,
		session:      sess,
		sandbox:      sandbox,
		toolLimiters: ratelimit.NewToolLimiters(),
		auditLogger:  NewAuditLogger(configDir),
		logger:       logger,
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close closes the server and releases resources.
func (s *Server) Close() error {
	if err := s.auditLogger.Close(); err != nil {
		s.logger.Warn("closing audit log", "error", err)
	}
	return s.session.Close()
}
