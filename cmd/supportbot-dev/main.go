package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"supportbot/internal/app"
	"supportbot/internal/config"
	"supportbot/internal/logging"
)

func main() {
	ctx := context.Background()

	if err := config.LoadDotEnv(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	var terminators []func() error
	// Ensure container cleanup on exit
	defer func() {
		log.Println("Stopping containers...")
		for _, terminate := range terminators {
			if err := terminate(); err != nil {
				log.Printf("Failed to terminate container: %v", err)
			}
		}
	}()

	log.Println("Starting PostgreSQL testcontainer...")
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("supportbot"),
		postgres.WithUsername("supportbot"),
		postgres.WithPassword("devpassword"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("Failed to start Postgres container: %v", err)
	}
	terminators = append(terminators, func() error { return pgContainer.Terminate(ctx) })
	pgURL, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("Failed to get Postgres connection string: %v", err)
	}

	log.Println("Starting Redis testcontainer...")
	redisContainer, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		log.Fatalf("Failed to start Redis container: %v", err)
	}
	terminators = append(terminators, func() error { return redisContainer.Terminate(ctx) })
	redisURL, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		log.Fatalf("Failed to get Redis connection string: %v", err)
	}

	log.Println("Starting ClickHouse testcontainer...")
	chContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:latest",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword("devpassword"),
		clickhouse.WithDatabase("default"),
	)
	if err != nil {
		log.Fatalf("Failed to start ClickHouse container: %v", err)
	}
	terminators = append(terminators, func() error { return chContainer.Terminate(ctx) })
	chHost, err := chContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	chPort, err := chContainer.MappedPort(ctx, "9000/tcp")
	if err != nil {
		log.Fatalf("Failed to get container port: %v", err)
	}
	log.Printf("ClickHouse started at %s:%s", chHost, chPort.Port())

	// Set environment variables for the application
	os.Setenv("CLICKHOUSE_HOST", chHost)
	os.Setenv("CLICKHOUSE_PORT", chPort.Port())
	os.Setenv("CLICKHOUSE_DATABASE", "default")
	os.Setenv("CLICKHOUSE_USER", "default")
	os.Setenv("CLICKHOUSE_PASSWORD", "devpassword")
	os.Setenv("CLICKHOUSE_USE_TLS", "false")
	os.Setenv("REDIS_URL", redisURL)
	os.Setenv("WEBHOOK_MODE", "false")

	// Every enabled bot shares the dev Postgres
	for _, name := range strings.Split(os.Getenv("BOTS_ENABLED"), ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		os.Setenv(name+"_DB_ENGINE", "postgres")
		os.Setenv(name+"_DB_URL", pgURL)
		if os.Getenv(name+"_TOKEN") == "" {
			log.Printf("⚠️  %s_TOKEN not set. The bot will fail to start without a valid token.", name)
		}
	}
	if os.Getenv("BOTS_ENABLED") == "" {
		log.Println("⚠️  BOTS_ENABLED not set. Please set it in your .env file or environment.")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return
	}
	cfg.LogLevel = "debug"

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Printf("Failed to create logger: %v", err)
		return
	}
	defer logger.Sync()

	log.Println("Starting application with Postgres, Redis and ClickHouse...")
	fmt.Println()

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(runCtx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create application", zap.Error(err))
		return
	}

	if err := application.Run(runCtx); err != nil {
		logger.Error("Application error", zap.Error(err))
	}
}
