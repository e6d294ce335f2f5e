package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/veriquery/veriquery/internal/config"
	"github.com/veriquery/veriquery/internal/credentials"
	"github.com/veriquery/veriquery/internal/observability"
	"github.com/veriquery/veriquery/internal/search"
	"github.com/veriquery/veriquery/internal/server"
)

// Version information - set during build.
var (
	version   = "dev"
	commitSHA = "unknown"
	buildTime = "unknown"
)

func main() {
	configFile := flag.String("config", "config.json", "Path to configuration file")
	envFile := flag.String("env", "", "Optional .env file with provider API keys")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("veriquery version %s\n", version)
		fmt.Printf("Commit: %s\n", commitSHA)
		fmt.Printf("Built: %s\n", buildTime)
		os.Exit(0)
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
			os.Exit(1)
		}
	} else {
		// A missing default .env is fine; keys may come from the
		// environment or the credential file.
		_ = godotenv.Load()
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.Logging)
	defer observability.SyncLogger(logger)

	metrics, err := observability.NewMetrics(cfg.Observability.Metrics, logger)
	if err != nil {
		logger.Fatal("Failed to create metrics", zap.Error(err))
	}
	tracing := observability.NewTracing(cfg.Observability.Tracing)

	creds := credentials.NewStore(nil, cfg.CredentialFile)

	service, err := search.New(*configFile, creds, logger, metrics, tracing)
	if err != nil {
		logger.Fatal("Failed to create search service", zap.Error(err))
	}
	defer service.Close()

	srv := server.NewServer(cfg.Server, service, logger, metrics, tracing)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := metrics.StartMetricsServer(ctx); err != nil {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}
