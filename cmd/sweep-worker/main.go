package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookgrid/availability-engine/internal/adapters/pg"
	"github.com/bookgrid/availability-engine/internal/config"
	"github.com/bookgrid/availability-engine/internal/observability"
	"github.com/bookgrid/availability-engine/internal/scheduling"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	if err := pg.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	repo := pg.NewRepository(pool)

	sweeper := scheduling.NewSweeper(repo, cfg.HoldTTL, scheduling.SystemClock(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweeper.Run(ctx, cfg.SweepInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown sweep worker")
}
