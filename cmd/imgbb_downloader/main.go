package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"

	"github.com/italolelis/imgbb_downloader/internal/config"
	"github.com/italolelis/imgbb_downloader/internal/downloader"
	"github.com/italolelis/imgbb_downloader/internal/events"
	"github.com/italolelis/imgbb_downloader/internal/http/rest"
	"github.com/italolelis/imgbb_downloader/internal/http/ws"
	"github.com/italolelis/imgbb_downloader/internal/logctx"
	"github.com/italolelis/imgbb_downloader/internal/notifier"
	"github.com/italolelis/imgbb_downloader/internal/pipeline"
	"github.com/italolelis/imgbb_downloader/internal/registry"
	"github.com/italolelis/imgbb_downloader/internal/resolver"
	"github.com/italolelis/imgbb_downloader/internal/scheduler"
	"github.com/italolelis/imgbb_downloader/internal/storage"
	"github.com/italolelis/imgbb_downloader/internal/storage/redis"
	"github.com/italolelis/imgbb_downloader/internal/storage/sqlite"
	"github.com/italolelis/imgbb_downloader/internal/storage/textlog"
	"github.com/italolelis/imgbb_downloader/internal/telemetry"
)

const (
	serviceName    = "imgbb_downloader"
	serviceVersion = "1.0.0"
	dirPerm        = 0755
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	handler := logctx.NewContextHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("imgbb downloader starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start History
	fs := afero.NewOsFs()

	history, err := openHistory(ctx, fs, cfg, tel)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer history.Close()

	// =========================================================================
	// Start Downloader
	if err := fs.MkdirAll(cfg.DownloadDir, dirPerm); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	proxies, err := downloader.NewProxyPool(cfg.Proxies, tel)
	if err != nil {
		return fmt.Errorf("failed to build proxy pool: %w", err)
	}

	transfers := registry.New[*downloader.Transfer]()
	dl := downloader.NewDownloader(fs, proxies, transfers, tel)

	res := resolver.New(nil, resolver.Config{
		Selector:  cfg.LinkSelector,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.ResolveTimeout,
		RateLimit: cfg.ResolveRateLimit,
		Burst:     cfg.MaxParallel,
	}, tel)

	pipe := pipeline.New(res, dl, history, cfg.DownloadDir)
	sched := scheduler.New(pipe, cfg.MaxParallel, cfg.AllowedPrefix, tel)

	// =========================================================================
	// Start Notification
	svc := pipeline.NewService(sched, pipe, transfers, setupNotification(ctx, cfg))

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, cfg, svc, history, tel)

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("waiting for downloads...",
		"download_dir", cfg.DownloadDir,
		"history_backend", cfg.HistoryBackend,
		"max_parallel", cfg.MaxParallel,
		"proxies", proxies.Len(),
	)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	}
}

// openHistory is an abstract factory for the history backend.
func openHistory(ctx context.Context, fs afero.Fs, cfg *config.Config, tel *telemetry.Telemetry) (storage.HistoryRepository, error) {
	var (
		repo storage.HistoryRepository
		err  error
	)

	switch cfg.HistoryBackend {
	case config.BackendFile:
		repo, err = textlog.Open(fs, cfg.HistoryFile)
	case config.BackendSQLite:
		if err := fs.MkdirAll(filepath.Dir(cfg.DBPath), dirPerm); err != nil {
			return nil, err
		}

		db, dbErr := sqlite.InitDB(cfg.DBPath)
		if dbErr != nil {
			return nil, dbErr
		}

		repo = sqlite.NewHistoryRepository(db)
	case config.BackendRedis:
		repo, err = redis.Open(ctx, cfg.RedisURL, redis.DefaultKey)
	default:
		return nil, fmt.Errorf("invalid history backend: %s", cfg.HistoryBackend)
	}

	if err != nil {
		return nil, err
	}

	return storage.NewInstrumentedHistory(repo, cfg.HistoryBackend, tel), nil
}

func setupNotification(ctx context.Context, cfg *config.Config) events.Sink {
	if cfg.DiscordWebhookURL == "" {
		return nil
	}

	return notifier.NewSink(ctx, &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL})
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(
	ctx context.Context,
	cfg *config.Config,
	svc *pipeline.Service,
	history storage.HistoryReadRepository,
	tel *telemetry.Telemetry,
) *http.Server {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	// Anything the API does not route falls through to the UI's static files.
	if cfg.StaticDir != "" {
		r.NotFound(http.FileServer(http.Dir(cfg.StaticDir)).ServeHTTP)
	}

	if cfg.Telemetry.Enabled {
		r.Handle("/metrics", tel.Handler())
	}

	r.Mount("/ws", ws.NewHandler(ctx, svc, cfg.WS.PingInterval, tel).Routes())
	r.Mount("/", rest.NewHandler(history, svc).Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
