package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xuanji-ai/xuanji-web/internal/app"
	"github.com/xuanji-ai/xuanji-web/internal/backend"
	jobmetrics "github.com/xuanji-ai/xuanji-web/internal/jobs"
	"github.com/xuanji-ai/xuanji-web/internal/panel"
	"github.com/xuanji-ai/xuanji-web/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	backendClient := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)
	if err := backendClient.Ping(ctx); err != nil {
		logger.Warn("backend ping", slog.Any("error", err))
	}
	jobMetrics := jobmetrics.NewMetrics()
	serveMetrics(ctx, logger, cfg.WorkerMetricsAddr, jobMetrics)
	triggerJob := jobs.NewTriggerJob(backendClient, logger, jobMetrics)

	var schedules []jobs.Schedule
	if cfg.OptimizeCron != "" {
		optimize, ok := panel.DefaultCatalog().Lookup(panel.IDOptimize)
		if !ok {
			logger.Error("optimize panel missing from catalog")
			os.Exit(1)
		}
		schedules = append(schedules, jobs.Schedule{
			Spec:    cfg.OptimizeCron,
			Payload: jobs.TriggerPayload{Endpoint: optimize.Endpoint},
		})
	}

	redisOpt, err := jobs.RedisConnOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("redis options", slog.Any("error", err))
		os.Exit(1)
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		Redis:     redisOpt,
		Logger:    logger,
		Trigger:   triggerJob,
		Schedules: schedules,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

// serveMetrics exposes the worker registry when addr is set. The listener
// stops with ctx.
func serveMetrics(ctx context.Context, logger *slog.Logger, addr string, metrics *jobmetrics.Metrics) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("worker metrics listening", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server", slog.Any("error", err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
