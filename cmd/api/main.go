package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoadapter "github.com/bookgrid/availability-engine/internal/adapters/mongo"
	"github.com/bookgrid/availability-engine/internal/adapters/pg"
	"github.com/bookgrid/availability-engine/internal/adapters/rabbit"
	redisadapter "github.com/bookgrid/availability-engine/internal/adapters/redis"
	"github.com/bookgrid/availability-engine/internal/booking"
	"github.com/bookgrid/availability-engine/internal/config"
	httphandler "github.com/bookgrid/availability-engine/internal/http"
	"github.com/bookgrid/availability-engine/internal/idempotency"
	"github.com/bookgrid/availability-engine/internal/observability"
	"github.com/bookgrid/availability-engine/internal/rateLimit"
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

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("availability")
	catalog := mongoadapter.NewPropertyCatalog(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient)
	cachedCatalog := redisadapter.NewCachedCatalog(catalog, cache, 5*time.Minute)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), time.Hour)
	rl := rateLimit.NewRateLimiter(cache)

	clock := scheduling.SystemClock()
	holds := scheduling.NewHoldManager(repo, cachedCatalog, clock, cfg.HoldTTL, logger)
	checker := scheduling.NewChecker(repo, cachedCatalog, clock, cfg.HoldTTL, logger)
	finder := scheduling.NewFinder(checker)
	sweeper := scheduling.NewSweeper(repo, cfg.HoldTTL, clock, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	consumer, err := rabbit.NewConsumer(rabbitConn, rabbit.BookingLifecycleQueue,
		[]string{"booking.cancelled", "booking.rejected", "booking.expired"})
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	applier := booking.NewLifecycleApplier(consumer, holds, logger)
	go func() {
		if err := applier.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("lifecycle consumer stopped", err)
		}
	}()

	handlers := httphandler.NewHandlers(cfg, repo, holds, checker, finder, sweeper, cache, idemp, audit)
	r := httphandler.SetupRouter(handlers, logger, rl, idemp)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
