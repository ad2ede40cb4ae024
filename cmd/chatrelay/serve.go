package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chatrelay/internal/adapter/gateway"
	"chatrelay/internal/adapter/llm"
	"chatrelay/internal/infra/config"
	"chatrelay/internal/infra/logger"
	"chatrelay/internal/infra/tracer"
	"chatrelay/internal/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat relay server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	if len(cfg.Providers) == 0 {
		return fmt.Errorf("no providers configured in %s", configPath)
	}

	registry, err := llm.NewRegistry(cfg.Providers, cfg.Routing, llm.CircuitBreakerConfig{}, log)
	if err != nil {
		return fmt.Errorf("init providers: %w", err)
	}

	generator := usecase.NewGenerator(registry, log)
	handler := gateway.NewChatHandler(generator, log)
	server := gateway.NewServer(cfg.Server, handler, log)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	log.Info("chatrelay serving", "addr", server.BoundAddr(), "providers", registry.List())

	<-ctx.Done()
	log.Info("shutting down")
	return server.Stop(context.Background())
}
