// Package main serves the book question-answering API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/bull/got-explorer/internal/api"
	"github.com/bull/got-explorer/internal/app"
	"github.com/bull/got-explorer/internal/config"
	"github.com/bull/got-explorer/internal/logging"
	mcpserver "github.com/bull/got-explorer/internal/mcp"
)

var version = "dev"

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Server stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	a := app.New(cfg, logger)
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close index")
		}
	}()

	svc := api.NewService(ctx, a.Initialize, logger)
	if cfg.Server.InitMode == "eager" {
		svc.Start()
	}

	opts := api.RouterOptions{AllowedOrigins: cfg.Server.AllowedOrigins}
	var mcpSrv *mcpserver.Server
	if cfg.Server.MCPEnabled || cfg.Server.MCPStdio {
		mcpSrv = mcpserver.NewServer(svc, version, logger)
	}
	if cfg.Server.MCPEnabled {
		opts.MCP = mcpSrv.HTTPHandler(cfg.Server.MCPStateless)
	}

	logger.Info().
		Str("addr", cfg.Addr()).
		Str("init_mode", cfg.Server.InitMode).
		Str("embedder", cfg.Embedding.Provider).
		Str("backend", cfg.Index.Backend).
		Str("generator", cfg.Generation.Provider).
		Bool("mcp", cfg.Server.MCPEnabled).
		Msg("Starting Game of Thrones API")

	handler := api.NewRouter(svc, opts, logger)
	serverCfg := api.ServerConfig{
		Addr:         cfg.Addr(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if !cfg.Server.MCPStdio {
		return api.Serve(ctx, serverCfg, handler, logger)
	}

	// stdio owns stdout; HTTP keeps serving /health in the background
	go func() {
		if err := api.Serve(ctx, serverCfg, handler, logger); err != nil {
			logger.Warn().Err(err).Msg("HTTP server error")
		}
	}()
	logger.Info().Msg("Serving MCP over stdio")
	return mcpSrv.Run(ctx)
}
