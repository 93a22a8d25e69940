package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"transcriber/internal/app"
	"transcriber/internal/config"
	"transcriber/internal/version"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.RedisAddr == "" {
		log.Println("Warning: REDIS_ADDR is not set; API clients will not see notifications from this worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, true)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	w, err := a.NewWorker(ctx)
	if err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}

	log.Printf("Starting transcriber worker v%s", version.Version)
	w.Start(ctx)

	<-ctx.Done()
	log.Println("Shutting down")
	w.Stop()
}
