package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"motionbooth/internal/domain"
	"motionbooth/internal/pollqueue"
	"motionbooth/internal/provider/runway"
)

// Submit reserves quota, sends the generation request to the provider and
// schedules the first poll step. Terminal submission errors route straight to
// HandleFailure; the task never enters polling.
func (o *Orchestrator) Submit(ctx context.Context, task *domain.GenerationTask) error {
	started := o.now()

	remaining, err := o.quota.Reserve(ctx, task.OwnerID, o.cfg.QuotaCost)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			// Nothing was consumed, so the failure carries no refund.
			_ = o.HandleFailure(ctx, task, FailureReason{
				Kind:    ReasonQuotaExceeded,
				Message: "monthly generation quota exhausted",
				Refund:  false,
			})
			return domain.ErrQuotaExceeded
		}
		return fmt.Errorf("reserve quota: %w", err)
	}
	o.logger.Debug().Str("task_id", task.ID).Int("remaining_quota", remaining).Msg("orchestrator: quota reserved")

	providerTaskID, err := o.submitWithRetry(ctx, task)
	if err != nil {
		reason := submitFailureReason(err)
		if ferr := o.HandleFailure(ctx, task, reason); ferr != nil {
			return ferr
		}
		return err
	}

	if err := o.tasks.MarkSubmitted(ctx, task.ID, providerTaskID); err != nil {
		return fmt.Errorf("mark submitted: %w", err)
	}
	task.ProviderTaskID = providerTaskID
	task.State = domain.TaskStateSubmitted

	if err := o.queue.Enqueue(ctx, pollqueue.Message{TaskID: task.ID, Attempt: 1}, o.cfg.PollInterval); err != nil {
		// The step is lost but the task is not: the staleness sweep re-queries
		// submitted tasks that nothing is polling.
		o.logger.Error().Err(err).Str("task_id", task.ID).Msg("orchestrator: first poll step not scheduled")
	}

	o.recordUsage(ctx, task.OwnerID, task.ID, "generation_submitted", true, started, map[string]any{
		"provider_task_id": providerTaskID,
		"text_to_video":    task.ImageRef == "",
	})
	o.logger.Info().Str("task_id", task.ID).Str("provider_task_id", providerTaskID).
		Msg("orchestrator: generation submitted")
	return nil
}

// submitWithRetry retries rate-limited and transient submit errors inline,
// within a small budget. Content and auth rejections fail immediately.
func (o *Orchestrator) submitWithRetry(ctx context.Context, task *domain.GenerationTask) (string, error) {
	req := o.buildSubmitRequest(task)
	var lastErr error
	for attempt := 1; attempt <= o.cfg.SubmitMaxAttempts; attempt++ {
		providerTaskID, err := o.provider.Submit(ctx, req)
		if err == nil {
			return providerTaskID, nil
		}
		lastErr = err

		category := runway.ClassifyErr(err)
		if category != runway.CategoryRateLimited && category != runway.CategoryTransient {
			return "", err
		}
		if attempt == o.cfg.SubmitMaxAttempts {
			break
		}
		delay := o.cfg.SubmitRetryDelay
		if category == runway.CategoryRateLimited {
			delay = o.cfg.RateLimitedDelay
		}
		o.logger.Warn().Err(err).Str("task_id", task.ID).Int("attempt", attempt).
			Msg("orchestrator: submit retrying")
		if err := o.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func (o *Orchestrator) buildSubmitRequest(task *domain.GenerationTask) runway.SubmitRequest {
	prompt := strings.TrimSpace(task.PromptText)
	if prompt == "" {
		prompt = o.cfg.DefaultPrompt
	}
	return runway.SubmitRequest{
		Prompt:      prompt,
		ImageURL:    task.ImageRef,
		AspectRatio: o.cfg.AspectRatio,
		Duration:    o.cfg.Duration,
		Quality:     o.cfg.Quality,
	}
}

func submitFailureReason(err error) FailureReason {
	var apiErr *runway.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Category {
		case runway.CategoryContentRejected:
			return FailureReason{
				Kind:    ReasonContentRejected,
				Message: "request rejected: " + apiErr.Message,
				Refund:  true,
			}
		case runway.CategoryAuth:
			// Operator-level problem; the user sees a generic message, the
			// log line carries the detail.
			return FailureReason{
				Kind:    ReasonServiceUnavailable,
				Message: "provider authentication failed",
				Refund:  true,
			}
		case runway.CategoryProviderFailure:
			return FailureReason{
				Kind:    ReasonProviderFailed,
				Message: "submission rejected: " + apiErr.Message,
				Refund:  true,
			}
		}
	}
	return FailureReason{
		Kind:    ReasonServiceUnavailable,
		Message: "generation service unavailable",
		Refund:  true,
	}
}
