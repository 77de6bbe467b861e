package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"CareVault/config"
	"CareVault/internal/logger"
	"CareVault/internal/mq"
	"CareVault/internal/worker"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("audit worker stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("audit worker stopped")
	_ = log.Sync()
}

func run(cfg *config.Config, log *zap.Logger) error {
	if !cfg.Audit.Enabled() {
		return errors.New("RABBITMQ_URL is not set; nothing to consume")
	}

	client, err := mq.Dial(cfg.Audit.RabbitMQURL, mq.TopologyFromConfig(cfg.Audit))
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("audit worker started", zap.String("queue", cfg.Audit.Queue))
	return worker.RunAuditWorker(ctx, client, cfg.Audit.Prefetch, log)
}
