package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jordanhubbard/venueflow/internal/telemetry"
	"github.com/jordanhubbard/venueflow/internal/venueflow"
	"github.com/jordanhubbard/venueflow/pkg/config"
)

const version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("VenueFlow v%s\n", version)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config from %s: %v", *configPath, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Otel.Endpoint != "" {
		shutdown, err := telemetry.InitTelemetry(ctx, cfg.Otel.ServiceName, cfg.Otel.Endpoint)
		if err != nil {
			log.Printf("Warning: telemetry init failed: %v (continuing without traces)", err)
		} else {
			defer func() {
				shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
				defer c()
				if err := shutdown(shutdownCtx); err != nil {
					log.Printf("telemetry shutdown: %v", err)
				}
			}()
		}
	}

	svc, err := venueflow.NewService(cfg)
	if err != nil {
		log.Fatalf("failed to create service: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}

	shutdownCtx, c := context.WithTimeout(context.Background(), 10*time.Second)
	defer c()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

// loadConfig reads the config file and applies environment overrides.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfigFromFile(path)
	if os.IsNotExist(err) {
		log.Printf("No config file at %s, using defaults", path)
		cfg = config.DefaultConfig()
	} else if err != nil {
		return nil, err
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		cfg.Nats.URL = natsURL
		log.Printf("Using NATS URL from environment: %s", natsURL)
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.Type = "postgres"
		cfg.Database.DSN = dsn
		log.Printf("Using postgres DSN from environment")
	}
	if port := os.Getenv("HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.HTTPPort = p
		}
	}
	if endpoint := os.Getenv("OTEL_ENDPOINT"); endpoint != "" {
		cfg.Otel.Endpoint = endpoint
	}

	return cfg, cfg.Validate()
}
