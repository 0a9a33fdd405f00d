package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"urbanharvest/internal/api"
	"urbanharvest/internal/config"
	"urbanharvest/internal/database"
	"urbanharvest/internal/domain"
	"urbanharvest/internal/events"
	"urbanharvest/internal/google"
	"urbanharvest/internal/logging"
	"urbanharvest/internal/metrics"
	"urbanharvest/internal/models"
	"urbanharvest/internal/repository"
	"urbanharvest/internal/service"
	"urbanharvest/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
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
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, logging.Component(&logger, "backup"))
		go backupService.Start(ctx)
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := events.NewEventBus(logging.Component(&logger, "events"))
	if relay := initAMQP(cfg, &logger); relay != nil {
		defer relay.Close()
		bus.Subscribe(events.AllEvents, relay.Handle)
	}
	if tg := initTelegram(cfg, &logger); tg != nil {
		bus.Subscribe(events.EventBookingCreated, tg.HandleEvent)
		bus.Subscribe(events.EventBookingStatusChanged, tg.HandleEvent)
		bus.Subscribe(events.EventBookingDeleted, tg.HandleEvent)
	}

	sheetsWorker := initSheetsWorker(ctx, cfg, db, redisClient, &logger)
	// a typed nil would defeat the service's nil check
	var syncWorker domain.SyncWorker
	if sheetsWorker != nil {
		syncWorker = sheetsWorker
	}

	catalogService := service.NewCatalogService(db, logging.Component(&logger, "catalog"))
	catalogService.SetCacheTTL(cfg.Catalog.CacheTTL)
	if err := catalogService.Refresh(ctx); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if err := seedCatalog(ctx, cfg, catalogService, &logger); err != nil {
		return err
	}

	bookingService := service.NewBookingService(db, catalogService, bus, syncWorker, logging.Component(&logger, "bookings"))
	userService := service.NewUserService(db, bookingService, bus, logging.Component(&logger, "users"))
	authService := service.NewAuthService(db, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, logging.Component(&logger, "auth"))
	paymentService := service.NewPaymentService(cfg.Payment.SimulatedDelay, logging.Component(&logger, "payments"))

	if sheetsWorker != nil {
		system := &domain.Caller{Role: models.RoleAdmin}
		sheetsWorker.SetSnapshot(func(ctx context.Context) ([]models.BookingView, error) {
			return bookingService.ListAll(ctx, system)
		})
		if err := sheetsWorker.EnqueueResync(ctx); err != nil {
			logger.Warn().Err(err).Msg("initial sheet resync not scheduled")
		}
		go sheetsWorker.Start(ctx)
	}

	if cfg.Auth.AdminPassword != "" {
		if _, err := authService.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Auth:     authService,
		Catalog:  catalogService,
		Bookings: bookingService,
		Users:    userService,
		Payments: paymentService,
	}, &logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, api.NewLedgerService(catalogService, bookingService, userService), &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func seedCatalog(ctx context.Context, cfg *config.Config, catalog *service.CatalogService, logger *zerolog.Logger) error {
	path := cfg.Catalog.SeedFile
	if env := os.Getenv("CATALOG_SEED"); env != "" {
		path = env
	}
	if path == "" {
		return nil
	}

	items, err := config.LoadCatalogSeed(path)
	if err != nil {
		logger.Error().Err(err).Str("seed_file", path).Msg("load catalog seed")
		return err
	}
	created, err := catalog.Seed(ctx, items)
	if err != nil {
		return err
	}
	logger.Info().Int("created", created).Int("total", len(items)).Msg("catalog seeded")
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initAMQP(cfg *config.Config, logger *zerolog.Logger) *events.AMQPRelay {
	if cfg.AMQP.URL == "" {
		return nil
	}
	relay, err := events.NewAMQPRelay(cfg.AMQP.URL, cfg.AMQP.Exchange, logging.Component(logger, "amqp"))
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq unavailable, events stay in-process")
		return nil
	}
	logger.Info().Str("exchange", cfg.AMQP.Exchange).Msg("rabbitmq relay connected")
	return relay
}

func initTelegram(cfg *config.Config, logger *zerolog.Logger) *service.TelegramService {
	if cfg.Telegram.BotToken == "" || cfg.Telegram.AdminChatID == 0 {
		return nil
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, admin notifications disabled")
		return nil
	}
	botAPI.Debug = cfg.Telegram.Debug
	return service.NewTelegramService(botAPI, cfg.Telegram.AdminChatID, logging.Component(logger, "telegram"))
}

func initSheetsWorker(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) *worker.SheetsWorker {
	if cfg.Google.CredentialsFile == "" || cfg.Google.BookingsSpreadsheetID == "" {
		return nil
	}

	sheet, err := google.NewBookingsSheet(ctx, cfg.Google.CredentialsFile, cfg.Google.BookingsSpreadsheetID, cfg.Google.BookingsSheetName, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheet.TestConnection(ctx); err != nil {
		email, _ := google.ServiceAccountEmail(cfg.Google.CredentialsFile)
		logger.Warn().Err(err).Str("share_with", email).Msg("google sheets not reachable, continuing without sheets")
		return nil
	}
	go sheet.Start(ctx)

	logger.Info().Msg("google sheets connected")
	return worker.NewSheetsWorker(db, sheet, redisClient, worker.RetryPolicyFromConfig(cfg.Google.Sync), logger)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
		logger.Info().Str("grpc_addr", grpcServer.Addr()).Msg("gRPC ledger started")
	}

	if !cfg.API.HTTP.Enabled {
		logger.Warn().Msg("api.http.enabled is false, but the REST API is this binary's main surface. Starting it anyway.")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()
	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error().Err(runErr).Msg("http server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return runErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
