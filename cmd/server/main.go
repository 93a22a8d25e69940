package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transcriber/internal/app"
	"transcriber/internal/config"
	"transcriber/internal/handlers"
	"transcriber/internal/version"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	// .envファイルを読み込み（存在しない場合はスキップ）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, cfg.RunWorker)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	// RUN_WORKER=true なら同じプロセスでジョブを処理する
	if cfg.RunWorker {
		w, err := a.NewWorker(ctx)
		if err != nil {
			log.Fatalf("Failed to start worker: %v", err)
		}
		w.Start(ctx)
		defer w.Stop()
	}

	// Echoインスタンスの作成
	e := echo.New()
	e.HideBanner = true

	// ミドルウェアの設定
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
	}))

	// ルートの登録
	handlers.Register(e.Group("/api/v1"),
		handlers.NewFileHandler(a.Ingester, a.DB.Files),
		handlers.NewTranscriptionHandler(a.Transcriptions, a.DB.Transcriptions),
		handlers.NewJobHandler(a.DB.Jobs),
		handlers.NewNotificationHandler(a.Broker, cfg.NotificationChannel),
	)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version.Version,
		})
	})

	// サーバー起動
	go func() {
		log.Printf("Starting transcriber v%s on port %s", version.Version, cfg.Port)
		if err := e.Start(fmt.Sprintf(":%s", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}
}
