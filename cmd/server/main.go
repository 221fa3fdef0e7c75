package main

import (
	"context"
	"log"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/honeycarbs/placement-pipeline/internal/config"
	"github.com/honeycarbs/placement-pipeline/internal/mcp"
	"github.com/honeycarbs/placement-pipeline/pkg/logging"
	"github.com/honeycarbs/placement-pipeline/pkg/shutdown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	srv, err := mcp.NewServer(initCtx, logger, cfg)
	cancel()
	if err != nil {
		logger.Error("failed to initialize MCP server", "err", err)
		os.Exit(1)
	}

	go func() {
		_ = shutdown.Graceful(
			context.Background(),
			[]os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP},
			10*time.Second,
			logger,
			srv,
		)
	}()

	logger.Info("MCP server initialized and starting", "addr", net.JoinHostPort(cfg.Host, cfg.Port), "backend", cfg.Backend)

	if err := srv.Run(); err != nil {
		logger.Error("MCP server exited with error", "err", err)
	} else {
		logger.Info("MCP server stopped")
	}
}
