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

	"urbanharvest/internal/bot"
	"urbanharvest/internal/client"
	"urbanharvest/internal/config"
	"urbanharvest/internal/logging"
	"urbanharvest/internal/models"
	"urbanharvest/internal/repository"
	"urbanharvest/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
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
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if cfg.Telegram.BotToken == "" || cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Error().Msg("set telegram.bot_token in the config or TELEGRAM_BOT_TOKEN")
		return os.ErrInvalid
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, store := initStore(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	shop := client.New(cfg.Bot.APIBaseURL, cfg.Bot.APIToken)
	if redisClient != nil {
		shop.UseRedisCache(redisClient, cfg.Bot.CacheTTL)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error().Err(err).Msg("create bot api")
		return err
	}
	botAPI.Debug = cfg.Telegram.Debug
	logger.Info().Str("username", botAPI.Self.UserName).Msg("authorized on telegram")

	tgService := service.NewTelegramService(botAPI, cfg.Telegram.AdminChatID, logging.Component(&logger, "telegram"))
	stateService := service.NewStateService(store, logging.Component(&logger, "state"))

	opts := bot.Options{RateLimitPerMinute: int(cfg.Bot.RateLimitRPS * 60)}
	if shop.Authenticated() {
		opts.Booked = shop
	} else {
		logger.Info().Msg("no bot.api_token, bookings are recorded as guest bookings")
	}

	metrics := bot.NewMetrics(prometheus.DefaultRegisterer)
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	storefront := bot.NewBot(tgService, shop, store, stateService, opts, metrics, logging.Component(&logger, "bot"))
	logger.Info().Str("api", cfg.Bot.APIBaseURL).Msg("storefront bot running")
	storefront.Start(ctx)

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
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "bot-main").Logger()

	return cfg, logger, closer, nil
}

// initStore keeps carts and chat state in Redis when configured, falling
// back to memory while Redis is unreachable.
func initStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, repository.Store) {
	memory := repository.NewMemoryRepository()
	if !cfg.Bot.UseRedis || cfg.Redis.Address == "" {
		return nil, memory
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, carts stay in memory until it is back")
	}

	primary := repository.NewRedisRepository(redisClient, cfg.Redis.CartTTL, time.Duration(models.DefaultRedisTTL)*time.Second)
	return redisClient, repository.NewFailoverRepository(primary, memory, logging.Component(logger, "store"))
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
