package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/saludtb/tb-assistant/internal/api/router"
	"github.com/saludtb/tb-assistant/internal/appointments"
	"github.com/saludtb/tb-assistant/internal/config"
	"github.com/saludtb/tb-assistant/internal/conversation"
	"github.com/saludtb/tb-assistant/internal/observability/metrics"
	"github.com/saludtb/tb-assistant/internal/registry"
	"github.com/saludtb/tb-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancel()
		logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	cancel()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("database open failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	} else {
		logger.Warn("DATABASE_URL not set, transcripts will not be archived")
	}

	registryClient := registry.NewClient(cfg.RegistryBaseURL, logger,
		registry.WithTimeout(cfg.RegistryTimeout))
	modelClient := conversation.NewModelClient(cfg.ModelBaseURL, cfg.ModelID, logger,
		conversation.WithModelTimeout(cfg.ModelTimeout))

	rules := appointments.Rules{
		OpenHour:       cfg.ClinicOpenHour,
		CloseHour:      cfg.ClinicCloseHour,
		SlotMinutes:    cfg.ClinicSlotMinutes,
		ClosedWeekday:  time.Weekday(cfg.ClinicClosedDay),
		MaxAdvanceDays: cfg.MaxAdvanceDays,
	}
	scheduler := appointments.NewService(registryClient, rules, logger)

	store := conversation.NewStore(redisClient, cfg.ConversationTTL, logger)
	archive := conversation.NewArchive(db, logger)
	convMetrics := metrics.NewConversationMetrics(prometheus.DefaultRegisterer)

	engine := conversation.NewEngine(conversation.EngineConfig{
		Store:       store,
		Archive:     archive,
		Directory:   registryClient,
		Scheduler:   scheduler,
		LLM:         modelClient,
		Metrics:     convMetrics,
		Logger:      logger,
		Rules:       rules,
		ClinicName:  cfg.ClinicName,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		LLMTimeout:  cfg.ModelTimeout,
	})

	checks := map[string]router.Check{
		"redis": store.Ping,
		"registry": func(ctx context.Context) error {
			if !registryClient.Health(ctx) {
				return errors.New("registry unreachable")
			}
			return nil
		},
		"model": modelClient.Health,
	}
	if archive != nil {
		checks["database"] = archive.Ping
	}

	handler := router.New(router.Config{
		Logger: logger,
		Chat:   conversation.NewHandler(engine, logger),
		Checks: checks,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("server stopped")
}
