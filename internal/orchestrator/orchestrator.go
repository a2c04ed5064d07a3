// Package orchestrator drives a generation task through its whole lifecycle:
// submission to the provider, status polling under a bounded attempt budget,
// and idempotent finalization with quota reconciliation and user notification.
//
// The hosting process may die at any point, so no step depends on in-process
// state: every poll step is an independently schedulable message, and every
// terminal write is a conditional update keyed on the persisted task state.
package orchestrator

import (
	"context"
	"time"

	"motionbooth/internal/domain"
	"motionbooth/internal/infra"
	"motionbooth/internal/pollqueue"
	"motionbooth/internal/provider/runway"
)

// ProviderClient is the slice of the runway client the orchestrator needs.
type ProviderClient interface {
	Submit(ctx context.Context, req runway.SubmitRequest) (string, error)
	Status(ctx context.Context, providerTaskID string) (domain.ProviderStatus, error)
}

// Scheduler enqueues delayed poll steps.
type Scheduler interface {
	Enqueue(ctx context.Context, msg pollqueue.Message, delay time.Duration) error
}

// Config holds the orchestrator's tunables.
type Config struct {
	// QuotaCost is the quota units one generation reserves.
	QuotaCost int
	// MaxAttempts bounds status polling per task.
	MaxAttempts int
	// PollInterval is the baseline delay between poll steps.
	PollInterval time.Duration
	// RateLimitedDelay is the extended delay after a 429 status query.
	RateLimitedDelay time.Duration
	// StaleAfter is how long a non-terminal task may go without an update
	// before the recheck path considers it abandoned.
	StaleAfter time.Duration
	// SubmitMaxAttempts bounds inline retries of the submission call.
	SubmitMaxAttempts int
	// SubmitRetryDelay spaces inline submission retries.
	SubmitRetryDelay time.Duration

	// Request defaults applied when the task does not specify them.
	AspectRatio   string
	Duration      int
	Quality       string
	DefaultPrompt string

	// RecheckTasksPerOwner bounds one owner's recheck pass.
	RecheckTasksPerOwner int
	// SweepOwnersLimit bounds one staleness sweep.
	SweepOwnersLimit int
}

func (c Config) withDefaults() Config {
	if c.QuotaCost <= 0 {
		c.QuotaCost = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 25
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 8 * time.Second
	}
	if c.RateLimitedDelay <= 0 {
		c.RateLimitedDelay = 20 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 2 * time.Minute
	}
	if c.SubmitMaxAttempts <= 0 {
		c.SubmitMaxAttempts = 3
	}
	if c.SubmitRetryDelay <= 0 {
		c.SubmitRetryDelay = 2 * time.Second
	}
	if c.RecheckTasksPerOwner <= 0 {
		c.RecheckTasksPerOwner = 3
	}
	if c.SweepOwnersLimit <= 0 {
		c.SweepOwnersLimit = 50
	}
	return c
}

// Orchestrator wires the task repository, quota ledger, provider client,
// poll scheduler and notifier together.
type Orchestrator struct {
	tasks    domain.TaskRepository
	quota    domain.QuotaLedger
	provider ProviderClient
	queue    Scheduler
	notifier domain.Notifier
	usage    domain.UsageRecorder
	logger   infra.Logger
	cfg      Config

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New constructs an orchestrator. usage may be nil.
func New(
	tasks domain.TaskRepository,
	quota domain.QuotaLedger,
	provider ProviderClient,
	queue Scheduler,
	notifier domain.Notifier,
	usage domain.UsageRecorder,
	logger infra.Logger,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		tasks:    tasks,
		quota:    quota,
		provider: provider,
		queue:    queue,
		notifier: notifier,
		usage:    usage,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		sleep:    ctxSleep,
		now:      time.Now,
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) recordUsage(ctx context.Context, ownerID, taskID, eventType string, success bool, started time.Time, props map[string]any) {
	if o.usage == nil {
		return
	}
	if err := o.usage.Record(ctx, ownerID, taskID, eventType, success, o.now().Sub(started), props); err != nil {
		o.logger.Warn().Err(err).Str("task_id", taskID).Str("event", eventType).Msg("orchestrator: usage event not recorded")
	}
}
