package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"motionbooth/internal/adapter/repo"
	"motionbooth/internal/http/handlers"
	httpapi "motionbooth/internal/http/httpapi"
	"motionbooth/internal/infra"
	"motionbooth/internal/infra/geoip"
	"motionbooth/internal/middleware"
	"motionbooth/internal/notify"
	"motionbooth/internal/orchestrator"
	"motionbooth/internal/pollqueue"
	"motionbooth/internal/provider/runway"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer redisClient.Close()

	sqlRunner := infra.NewSQLRunner(dbpool, logger)
	tasks := repo.NewTaskRepository(sqlRunner)
	quota := repo.NewQuotaLedger(sqlRunner, cfg.DefaultMonthlyQuota)
	usage := repo.NewUsageRecorder(sqlRunner)

	runwayClient, err := runway.NewClient(runway.Options{
		APIKey:        cfg.RunwayAPIKey,
		BaseURL:       cfg.RunwayBaseURL,
		Logger:        &logger,
		SubmitTimeout: cfg.RunwaySubmitTimeout,
		StatusTimeout: cfg.RunwayStatusTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build provider client")
	}
	if !runwayClient.HasCredentials() {
		logger.Warn().Msg("RUNWAY_API_KEY not set, submissions will fail")
	}

	notifier := notify.NewLineNotifier(notify.LineOptions{
		AccessToken: cfg.LineAccessToken,
		PushURL:     cfg.LinePushURL,
		Logger:      &logger,
	})

	queue := pollqueue.New(redisClient)
	orch := orchestrator.New(tasks, quota, runwayClient, queue, notifier, usage, logger, orchestrator.Config{
		MaxAttempts:      cfg.PollMaxAttempts,
		PollInterval:     cfg.PollInterval,
		RateLimitedDelay: cfg.PollRateLimDelay,
		StaleAfter:       cfg.StaleAfter,
		AspectRatio:      cfg.VideoAspectRatio,
		Duration:         cfg.VideoDuration,
		Quality:          cfg.VideoQuality,
		DefaultPrompt:    cfg.DefaultPrompt,
	})

	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable, locale falls back to headers")
	} else if resolver != nil {
		lookup = resolver.CountryCode
	}

	app := &handlers.App{
		Tasks:      tasks,
		Quota:      quota,
		Service:    orch,
		Logger:     logger,
		CronSecret: cfg.CronSecret,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   lookup,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Logger:          logger,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	if err := server.Stop(); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
