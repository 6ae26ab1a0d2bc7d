package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"mystop/internal/cache"
	"mystop/internal/config"
	"mystop/internal/handler"
	"mystop/internal/hub"
	"mystop/internal/metrics"
	"mystop/internal/middleware"
	"mystop/internal/publisher"
	"mystop/internal/setup"
	"mystop/internal/store"
	"mystop/internal/tracker"
	"mystop/pkg/mystopapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(cfg *config.Config, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected panic: %v", r)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting mystop",
		"log_level", cfg.LogLevel.String(),
		"settings_file", cfg.SettingsFile,
		"poll_source", cfg.PollSource,
		"status_addr", cfg.StatusAddr,
	)

	settings, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		return err
	}

	var directory setup.Directory = mystopapi.NewDirectory(cfg.DirectoryURL, cfg.RequestTimeout, logger)
	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Warn("redis unavailable, school lists will not be cached", "error", err)
		} else {
			defer redisCache.Close()
			directory = cache.NewCachedDirectory(directory, redisCache, cfg.DirectoryCacheTTL, logger)
		}
	}

	prompter := setup.NewPrompter(os.Stdin, os.Stdout)
	if err := setup.EnsureSettings(ctx, settings, directory, cfg.SchoolSearch, prompter, logger); err != nil {
		if ctx.Err() != nil {
			logger.Info("exiting on user request")
			return nil
		}
		return err
	}

	creds, err := settings.Credentials()
	if err != nil {
		return err
	}
	client := mystopapi.New(creds, cfg.DeviceName, cfg.RequestTimeout, logger)

	collector := metrics.NewCollector(cfg.ArrivalThresholdMeters, cfg.PollInterval)
	status := store.NewStatusStore()
	wsHub := hub.NewHub(logger)
	sinks := []tracker.Broadcaster{status, collector, wsHub}

	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, collector, logger)
		if err != nil {
			logger.Warn("nats unavailable, events will not be published", "error", err)
		} else {
			defer pub.Close()
			sinks = append(sinks, pub)
		}
	}

	go wsHub.Run(ctx)

	var srv *http.Server
	if cfg.StatusAddr != "" {
		limiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)
		go limiter.Run(ctx)

		srv = &http.Server{
			Addr:         cfg.StatusAddr,
			Handler:      handler.NewRouter(status, wsHub, collector.Handler(), limiter, logger),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}
		go func() {
			logger.Info("starting HTTP server", "addr", cfg.StatusAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "error", err)
			}
		}()
	}

	opts := tracker.Options{
		ThresholdMeters:    cfg.ArrivalThresholdMeters,
		PollInterval:       cfg.PollInterval,
		LoginRetryInterval: cfg.LoginRetryInterval,
		UseRecentPosition:  cfg.PollSource == config.PollSourceRecent,
		ReportScans:        cfg.ReportScans,
	}
	err = tracker.New(client, tracker.TimerSleeper, opts, logger, sinks...).Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
	}

	if errors.Is(err, context.Canceled) {
		logger.Info("exiting on user request")
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("tracking finished")
	return nil
}
