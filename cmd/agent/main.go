package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"example.com/companion/internal/bootstrap"
	"example.com/companion/internal/config"
	"example.com/companion/internal/logging"
	"example.com/companion/internal/observability"
	httptransport "example.com/companion/internal/transport/http"
)

func main() {
	_ = godotenv.Load()

	logger, err := logging.Init(logging.ConfigFromEnv("agent"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if err := observability.InitSentry(observability.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		ServerName:  cfg.DeviceName,
	}, logger); err != nil {
		logger.Warn("sentry disabled", zap.Error(err))
	}
	defer observability.FlushSentry(2 * time.Second)
	defer observability.RecoverAndCapture()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start agent", zap.Error(err))
	}
	defer app.Close()

	sched := app.NewScheduler()
	go sched.Start(ctx)

	// Periodic runs only start once the agent has been set up.
	scheduled, err := app.ResumeSchedule(ctx, sched)
	switch {
	case err != nil:
		logger.Error("resume schedule", zap.Error(err))
	case scheduled:
		logger.Info("periodic sync scheduled", zap.Duration("interval", sched.Interval()))
	default:
		logger.Info("agent not configured, waiting for setup")
	}

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.ControlAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}, app.ControlHandler(sched))

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics listening", zap.String("address", cfg.MetricsAddress))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("control api listening", zap.String("address", cfg.ControlAddress), zap.Bool("auth", cfg.ControlSecret != ""))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("control server error", zap.Error(err))
		}
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownCh
	logger.Info("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", zap.Error(err))
	}

	sched.Stop()
	sched.Wait()
	cancel()
}
