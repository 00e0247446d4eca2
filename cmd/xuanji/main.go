package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/xuanji-ai/xuanji-web/cmd/xuanji/cli"
	"github.com/xuanji-ai/xuanji-web/internal/app"
	"github.com/xuanji-ai/xuanji-web/internal/backend"
	"github.com/xuanji-ai/xuanji-web/internal/dashboard"
	"github.com/xuanji-ai/xuanji-web/internal/i18n"
	"github.com/xuanji-ai/xuanji-web/internal/observability"
	"github.com/xuanji-ai/xuanji-web/internal/panel"
	panelhttp "github.com/xuanji-ai/xuanji-web/internal/panel/http"
	"github.com/xuanji-ai/xuanji-web/internal/platform/cache"
	"github.com/xuanji-ai/xuanji-web/internal/shared"
	"github.com/xuanji-ai/xuanji-web/internal/view"
	"github.com/xuanji-ai/xuanji-web/jobs"
	"github.com/xuanji-ai/xuanji-web/web"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobs(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "xuanji_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	messages, err := i18n.Load(web.Messages, "i18n/*.yaml", cfg.DefaultLocale)
	if err != nil {
		logger.Error("load messages", slog.Any("error", err))
		os.Exit(1)
	}

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	backendClient := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)

	redisOpt, err := jobs.RedisConnOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("redis options", slog.Any("error", err))
		os.Exit(1)
	}

	var queue panel.Enqueuer
	if cfg.OptimizeViaQueue {
		jobsClient := jobs.NewClient(redisOpt)
		defer func() {
			if err := jobsClient.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
		queue = jobsClient
	}

	catalog := panel.DefaultCatalog()
	panelService := panel.NewService(panel.ServiceConfig{
		Catalog:    catalog,
		Dispatcher: backendClient,
		Store:      panel.NewRedisStore(redisClient, cfg.SessionTTL),
		Locker:     panel.NewRedisLocker(redisClient, cfg.LockTTL()),
		Queue:      queue,
		Recorder:   metrics,
		Logger:     logger,
	})
	panelHandler := panelhttp.NewHandler(logger, panelService, templates, csrfManager)

	dashboardService := dashboard.NewService(backendClient, cache.NewJSONCache(redisClient, cfg.DashboardCacheTTL), metrics, logger)
	dashboardHandler := dashboard.NewHandler(logger, dashboardService, panelService, templates, csrfManager)
	panelHandler.HostGroup(panel.GroupDashboard, dashboardHandler)

	inspector := asynq.NewInspector(redisOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Messages:         messages,
		PanelHandler:     panelHandler,
		DashboardHandler: dashboardHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("backend", cfg.BackendURL),
			slog.Duration("backend_timeout", cfg.BackendTimeout))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runJobs handles `xuanji jobs trigger <panel>` and `xuanji jobs stats`.
func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	redisOpt, err := jobs.RedisConnOpt(cfg.RedisAddr)
	if err != nil {
		return err
	}
	jobsCLI, err := cli.NewJobsCLI(redisOpt, panel.DefaultCatalog())
	if err != nil {
		return err
	}
	defer func() {
		_ = jobsCLI.Close()
	}()

	if len(args) == 0 {
		return fmt.Errorf("usage: xuanji jobs trigger <panel> | xuanji jobs stats")
	}
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return fmt.Errorf("usage: xuanji jobs trigger <panel>")
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
	return nil
}
