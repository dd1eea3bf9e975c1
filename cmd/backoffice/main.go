// Package main запускает HTTP-сервер бэк-офиса лотереи.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/apetrenko/lottery-backoffice/internal/audit"
	"github.com/apetrenko/lottery-backoffice/internal/config"
	"github.com/apetrenko/lottery-backoffice/internal/handler"
	"github.com/apetrenko/lottery-backoffice/internal/middleware"
	"github.com/apetrenko/lottery-backoffice/internal/repository"
	"github.com/apetrenko/lottery-backoffice/internal/scancheck"
	"github.com/apetrenko/lottery-backoffice/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var scanChecker service.ScanChecker
	if cfg.ScanCheckAddress != "" {
		scanChecker = scancheck.NewClient(cfg.ScanCheckAddress)
	}

	auditRecorder := audit.NewZapRecorder(logger)
	stagingTTL := time.Duration(cfg.StagingTTLMinutes) * time.Minute

	svc := service.NewService(repo, auditRecorder, scanChecker, logger, stagingTTL)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая уборка просроченных staging-записей закрытия дня
	svc.StartStagingSweeper(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting lottery backoffice server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
