package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"motionbooth/internal/adapter/repo"
	"motionbooth/internal/infra"
	"motionbooth/internal/notify"
	"motionbooth/internal/orchestrator"
	"motionbooth/internal/pollqueue"
	"motionbooth/internal/provider/runway"
)

const (
	tickInterval = time.Second
	popBatchSize = 10

	// requeueDelay spaces the retry of a step that failed on infrastructure
	// (database or queue) rather than on the provider.
	requeueDelay = 5 * time.Second
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("poller: db connection failed")
	}
	defer pool.Close()

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("poller: redis connection failed")
	}
	defer redisClient.Close()

	runner := infra.NewSQLRunner(pool, logger)
	tasks := repo.NewTaskRepository(runner)
	quota := repo.NewQuotaLedger(runner, cfg.DefaultMonthlyQuota)
	usage := repo.NewUsageRecorder(runner)

	runwayClient, err := runway.NewClient(runway.Options{
		APIKey:        cfg.RunwayAPIKey,
		BaseURL:       cfg.RunwayBaseURL,
		Logger:        &logger,
		SubmitTimeout: cfg.RunwaySubmitTimeout,
		StatusTimeout: cfg.RunwayStatusTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("poller: provider client failed")
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

	logger.Info().Msg("poller: started")
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("poller: stopped")
			return
		case <-ticker.C:
			runDue(ctx, queue, orch, logger)
		}
	}
}

func runDue(ctx context.Context, queue *pollqueue.Queue, orch *orchestrator.Orchestrator, logger infra.Logger) {
	msgs, err := queue.PopDue(ctx, time.Now(), popBatchSize)
	if err != nil {
		logger.Error().Err(err).Msg("poller: pop due steps failed")
		return
	}
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return
		}
		if err := orch.Step(ctx, msg.TaskID, msg.Attempt); err != nil {
			logger.Error().Err(err).Str("task_id", msg.TaskID).Int("attempt", msg.Attempt).
				Msg("poller: step failed, requeueing")
			// The step never reached a decision, so the same attempt is
			// retried rather than burned.
			if qerr := queue.Enqueue(ctx, msg, requeueDelay); qerr != nil {
				logger.Error().Err(qerr).Str("task_id", msg.TaskID).Msg("poller: requeue failed, sweep will recover")
			}
		}
	}
}
