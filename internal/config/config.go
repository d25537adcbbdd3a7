package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresDSN   string
	MongoURI      string
	RedisAddr     string
	RabbitURL     string
	HTTPAddr      string
	OTLPEndpoint  string
	HoldTTL       time.Duration
	SweepInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	// The hold TTL is deliberately a single configured constant; nothing
	// in the engine infers it from stored state.
	holdTTL, _ := time.ParseDuration(os.Getenv("HOLD_TTL"))
	if holdTTL == 0 {
		holdTTL = 5 * time.Minute
	}

	sweepInterval, _ := time.ParseDuration(os.Getenv("SWEEP_INTERVAL"))
	if sweepInterval == 0 {
		sweepInterval = time.Minute
	}

	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	return &Config{
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		MongoURI:      os.Getenv("MONGO_URI"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RabbitURL:     os.Getenv("RABBIT_URL"),
		HTTPAddr:      httpAddr,
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		HoldTTL:       holdTTL,
		SweepInterval: sweepInterval,
	}, nil
}
