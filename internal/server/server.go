// SPDX-License-Identifier: AGPL-3.0-only
package server

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/ThinkInAIXYZ/go-mcp/server"
	"github.com/ThinkInAIXYZ/go-mcp/transport"

	"github.com/jolks/todolist/internal/config"
	"github.com/jolks/todolist/internal/errors"
	"github.com/jolks/todolist/internal/logging"
	"github.com/jolks/todolist/internal/reminder"
	"github.com/jolks/todolist/internal/tasks"
)

// Make os.OpenFile mockable for testing
var osOpenFile = os.OpenFile

// MCPServer exposes the task store and the reminder scheduler as MCP tools
type MCPServer struct {
	store          *tasks.Store
	reminders      *reminder.Reminders
	server         *server.Server
	address        string
	port           int
	stopCh         chan struct{}
	wg             sync.WaitGroup
	config         *config.Config
	logger         *logging.Logger
	shutdownMutex  sync.Mutex
	isShuttingDown bool
}

// NewLogger builds the logger described by cfg and makes it the default.
// With the stdio transport stdout carries JSON-RPC, so the standard library
// logger is redirected to a file as well.
func NewLogger(cfg *config.Config) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Logging.Level)

	var logger *logging.Logger
	if cfg.Logging.FilePath != "" {
		var err error
		logger, err = logging.FileLogger(cfg.Logging.FilePath, level)
		if err != nil {
			return nil, fmt.Errorf("failed to create file logger: %w", err)
		}
	} else {
		logger = logging.New(logging.Options{Level: level})
	}
	logging.SetDefaultLogger(logger)

	if cfg.Server.TransportMode == "stdio" {
		// Prefer the configured log file path. Fall back to the executable directory.
		logPath := cfg.Logging.FilePath
		if strings.TrimSpace(logPath) == "" {
			execPath, err := os.Executable()
			if err != nil {
				logger.Errorf("Failed to get executable path: %v", err)
				execPath = cfg.Server.Name
			}
			logPath = filepath.Join(filepath.Dir(execPath), fmt.Sprintf("%s.log", cfg.Server.Name))
		}

		logFile, err := osOpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			log.SetOutput(logFile)
			logger.Infof("Logging to %s", logPath)
		} else {
			logger.Errorf("Failed to open log file at %s: %v", logPath, err)
		}
	}

	return logger, nil
}

// NewMCPServer creates a new MCP server over the task store and reminders
func NewMCPServer(cfg *config.Config, store *tasks.Store, reminders *reminder.Reminders) (*MCPServer, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if store == nil || reminders == nil {
		return nil, errors.InvalidInput("task store and reminders are required")
	}

	logger := logging.GetDefaultLogger()

	mcpServer := &MCPServer{
		store:     store,
		reminders: reminders,
		address:   cfg.Server.Address,
		port:      cfg.Server.Port,
		stopCh:    make(chan struct{}),
		config:    cfg,
		logger:    logger,
	}

	var svrTransport transport.ServerTransport
	var err error

	switch cfg.Server.TransportMode {
	case "stdio":
		logger.Infof("Using stdio transport")
		svrTransport = transport.NewStdioServerTransport()
	case "sse":
		addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
		logger.Infof("Using SSE transport on %s", addr)

		svrTransport, err = transport.NewSSEServerTransport(addr)
		if err != nil {
			return nil, errors.Internal(fmt.Errorf("failed to create SSE transport: %w", err))
		}
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("unsupported transport mode: %s", cfg.Server.TransportMode))
	}

	mcpServer.server, err = server.NewServer(
		svrTransport,
		server.WithServerInfo(protocol.Implementation{
			Name:    cfg.Server.Name,
			Version: cfg.Server.Version,
		}),
	)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to create MCP server: %w", err))
	}

	return mcpServer, nil
}

// Start starts the MCP server
func (s *MCPServer) Start(ctx context.Context) error {
	s.registerToolsDeclarative()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.server.Run(); err != nil {
			s.logger.Errorf("Error running MCP server: %v", err)
			return
		}
	}()

	// Listen for context cancellation
	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			s.logger.Errorf("Error stopping MCP server: %v", err)
		}
	}()

	return nil
}

// Stop stops the MCP server
func (s *MCPServer) Stop() error {
	s.shutdownMutex.Lock()
	defer s.shutdownMutex.Unlock()

	if s.isShuttingDown {
		s.logger.Debugf("Stop called but server is already shutting down, ignoring")
		return nil
	}

	s.isShuttingDown = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return errors.Internal(fmt.Errorf("error shutting down MCP server: %w", err))
	}

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	s.wg.Wait()
	return nil
}
