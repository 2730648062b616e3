package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"crypto-signal-scraper/internal/config"
	delivery "crypto-signal-scraper/internal/delivery/http"
	"crypto-signal-scraper/internal/feed"
	"crypto-signal-scraper/internal/hub"
	"crypto-signal-scraper/internal/ingestor"
	"crypto-signal-scraper/internal/parser"
	"crypto-signal-scraper/internal/repository"
	"crypto-signal-scraper/pkg/logger"
	"crypto-signal-scraper/pkg/postgres"
	redisPkg "crypto-signal-scraper/pkg/redis"
	"crypto-signal-scraper/pkg/telegram"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the signal scraper service",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	appLogger.Info("Starting Signal Scraper", logger.StringField("name", cfg.App.Name))

	// A missing database is a degraded start, not a fatal one: the feed and
	// websocket surface keep running and store calls fail until it is back.
	var gormDB *gorm.DB
	db, err := postgres.NewDB(postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		appLogger.Error("Database unavailable, starting degraded", logger.ErrorField(err))
	} else {
		gormDB = db.DB
		if sqlDB, err := db.DB.DB(); err == nil {
			defer sqlDB.Close()
		}
	}

	var redisClient *redisPkg.Client
	if cfg.Redis.Host != "" {
		redisClient, err = redisPkg.NewClient(redisPkg.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			appLogger.Warn("Redis unavailable, tombstone checks go to the database", logger.ErrorField(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	signalRepo := repository.NewSignalRepository(gormDB, redisClient, appLogger)
	if err := signalRepo.WarmTombstoneCache(ctx); err != nil {
		appLogger.Warn("Failed to warm tombstone cache", logger.ErrorField(err))
	}

	signalParser, err := parser.New(parserConfig(cfg))
	if err != nil {
		appLogger.Fatal("Invalid parser lexicon", logger.ErrorField(err))
	}

	sendTimeout := parseDurationOr(cfg.Signals.SendTimeout, hub.DefaultSendTimeout)
	broadcastHub := hub.New(appLogger, sendTimeout)

	var notifier telegram.Notifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.AlertChatID != 0 {
		notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.AlertChatID, cfg.Telegram.AlertsPerMinute, appLogger)
		if err != nil {
			appLogger.Warn("Failed to create alert notifier", logger.ErrorField(err))
			notifier = telegram.NewNoopNotifier(appLogger)
		}
	} else {
		notifier = telegram.NewNoopNotifier(appLogger)
	}

	var source feed.Source
	if cfg.Telegram.BotToken != "" {
		source, err = feed.NewTelegramSource(feed.TelegramConfig{
			BotToken:    cfg.Telegram.BotToken,
			PollTimeout: cfg.Telegram.PollTimeout,
		}, appLogger)
		if err != nil {
			appLogger.Error("Feed unavailable, starting without ingestion", logger.ErrorField(err))
			source = feed.NewNoopSource()
		}
	} else {
		appLogger.Warn("No feed configured")
		source = feed.NewNoopSource()
	}

	orchestrator := ingestor.New(ingestor.Config{
		SourceIDs:        cfg.Feed.SourceIDs,
		TrustedSourceIDs: cfg.Feed.TrustedSourceIDs,
		BackfillEnabled:  cfg.Feed.BackfillEnabled,
		BackfillLimit:    cfg.Feed.BackfillLimit,
	}, signalParser, signalRepo, broadcastHub, notifier, source, appLogger)

	if err := source.Start(ctx); err != nil {
		appLogger.Error("Failed to start feed", logger.ErrorField(err))
	}
	go orchestrator.Run(ctx)
	go func() {
		if err := orchestrator.Backfill(ctx); err != nil {
			appLogger.Error("Backfill failed", logger.ErrorField(err))
		}
	}()

	scheduler := cron.New()
	heartbeatSpec := cfg.Signals.HeartbeatSchedule
	if heartbeatSpec == "" {
		heartbeatSpec = "@every 45s"
	}
	if _, err := scheduler.AddFunc(heartbeatSpec, orchestrator.Heartbeat); err != nil {
		appLogger.Warn("Invalid heartbeat schedule", logger.ErrorField(err))
	}
	if retention := parseDurationOr(cfg.Signals.TombstoneRetention, 0); retention > 0 {
		sweepSpec := cfg.Signals.RetentionSchedule
		if sweepSpec == "" {
			sweepSpec = "@every 1h"
		}
		if _, err := scheduler.AddFunc(sweepSpec, func() {
			purged, err := signalRepo.PurgeTombstones(context.Background(), retention)
			if err != nil {
				appLogger.Warn("Tombstone sweep failed", logger.ErrorField(err))
				return
			}
			if purged > 0 {
				appLogger.Info("Purged expired tombstones", logger.Int64Field("count", purged))
			}
		}); err != nil {
			appLogger.Warn("Invalid retention schedule", logger.ErrorField(err))
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	e := echo.New()
	e.HideBanner = true

	if cfg.API.AdminToken == "" {
		appLogger.Warn("No operator token configured, operator routes disabled")
	}
	handler := delivery.NewHandler(broadcastHub, signalRepo, orchestrator, appLogger, cfg.App.Name, cfg.App.Version, cfg.API.AdminToken)
	handler.RegisterRoutes(e)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.API.Port)
		appLogger.Info("HTTP server starting", logger.StringField("address", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server failed to start", logger.ErrorField(err))
			stop()
		}
	}()

	<-ctx.Done()

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	orchestrator.Shutdown(shutdownCtx)
	source.Close()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", logger.ErrorField(err))
	}

	appLogger.Info("Server exiting")
}

func parserConfig(cfg *config.Config) parser.Config {
	pc := parser.Config{KnownCoins: cfg.Parser.KnownCoins}
	for _, kw := range cfg.Parser.LongKeywords {
		pc.LongKeywords = append(pc.LongKeywords, parser.Keyword{Pattern: kw.Pattern, NotFollowedBy: kw.NotFollowedBy})
	}
	for _, kw := range cfg.Parser.ShortKeywords {
		pc.ShortKeywords = append(pc.ShortKeywords, parser.Keyword{Pattern: kw.Pattern, NotFollowedBy: kw.NotFollowedBy})
	}
	return pc
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func main() {
	rootCmd := &cobra.Command{Use: "signal-scraper"}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing signal-scraper CLI: %s\n", err)
		os.Exit(1)
	}
}
