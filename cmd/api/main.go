package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"voyagr/internal/api"
	"voyagr/internal/config"
	"voyagr/internal/database"
	"voyagr/internal/domain"
	"voyagr/internal/events"
	"voyagr/internal/google"
	"voyagr/internal/logging"
	"voyagr/internal/metrics"
	"voyagr/internal/models"
	"voyagr/internal/repository"
	"voyagr/internal/scheduler"
	"voyagr/internal/service"
	"voyagr/internal/status"
	"voyagr/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	if err := loadStatusPresentation(&logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()
	startMetricsListener(cfg, &logger)

	sheetsService, err := initGoogleSheets(ctx, cfg, &logger)
	if err != nil {
		return err
	}

	redisClient, cache := initBookingCache(ctx, cfg, &logger)

	var syncWorker domain.SyncWorker
	if sheetsService != nil {
		retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
		w := worker.NewSyncWorker(db, sheetsService, redisClient, retryPolicy, &logger)
		syncWorker = w
		go w.Start(ctx)
	}

	eventBus := events.NewEventBus()

	manager := service.NewStatusManager(
		db,
		cache,
		eventBus,
		syncWorker,
		service.NewEventEmailSender(eventBus, &logger),
		service.NewEventInventoryService(eventBus),
		service.NewEventFinanceService(eventBus),
		service.NewEventLoyaltyService(eventBus),
		cfg.Engine,
		&logger,
	)

	sweeper := scheduler.NewSweeper(db, manager, cfg.Engine, &logger)
	go sweeper.Start(ctx)

	dispatcher := scheduler.NewDispatcher(db, manager, cfg.Engine, &logger)
	go dispatcher.Start(ctx)

	if cfg.API.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, db, cache, manager, manager, cfg.Exports.Path, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().Msg("Status engine started")
	<-ctx.Done()

	// Дожидаемся хвоста побочных эффектов перед выходом
	manager.WaitForEffects()
	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// loadStatusPresentation overlays label/color/description from
// configs/statuses.yaml onto the built-in catalog. Codes, priorities and
// edges are compiled in and not overridable.
func loadStatusPresentation(logger *zerolog.Logger) error {
	statusesPath := os.Getenv("STATUSES_PATH")
	if statusesPath == "" {
		statusesPath = "configs/statuses.yaml"
	}

	data, err := os.ReadFile(statusesPath)
	if os.IsNotExist(err) {
		logger.Debug().Str("path", statusesPath).Msg("no status presentation file, using built-in catalog")
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Msgf("Ошибка чтения %s", statusesPath)
		return err
	}

	var overrides struct {
		Statuses []models.StatusDefinition `yaml:"statuses"`
	}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		logger.Error().Err(err).Msg("Ошибка парсинга statuses.yaml")
		return err
	}

	status.ApplyPresentation(overrides.Statuses)
	logger.Info().Int("overrides", len(overrides.Statuses)).Msg("status presentation loaded")
	return nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg == nil {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
		return err
	}
	return nil
}

func startMetricsListener(cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)

	go func() {
		logger.Info().Str("addr", addr).Msg("Prometheus metrics listening")
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*google.SheetsService, error) {
	if !cfg.Google.Enabled {
		logger.Info().Msg("Google Sheets mirror disabled")
		return nil, nil
	}

	sheetsSvc, err := google.NewSheetsService(ctx, cfg.Google)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize Google Sheets service")
		return nil, err
	}

	if err := sheetsSvc.TestConnection(ctx); err != nil {
		logger.Error().Err(err).Msg("Google Sheets connection test failed")
		return nil, err
	}

	logger.Info().Msg("Google Sheets service initialized successfully")
	return sheetsSvc, nil
}

func initBookingCache(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.BookingCache) {
	ttl := time.Duration(cfg.Redis.CacheTTL) * time.Second

	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = repository.NewRedisClient(cfg.Redis)
		if errPing := redisClient.Ping(ctx).Err(); errPing != nil {
			logger.Warn().Err(errPing).Msg("Redis unavailable")
		}
	}

	fallback := repository.NewMemoryBookingCache(ttl)
	if redisClient == nil {
		return nil, fallback
	}

	primary := repository.NewRedisBookingCache(redisClient, ttl)
	return redisClient, repository.NewFailoverBookingCache(primary, fallback, logger)
}
