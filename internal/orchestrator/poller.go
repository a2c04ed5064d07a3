package orchestrator

import (
	"context"
	"fmt"
	"time"

	"motionbooth/internal/domain"
	"motionbooth/internal/pollqueue"
	"motionbooth/internal/provider/runway"
)

// Step executes exactly one status poll for a task. It is the unit of work a
// queue consumer runs: load the task, ask the provider once, persist what was
// observed, then either finalize or schedule the next step. Re-delivery of
// the same step is harmless.
func (o *Orchestrator) Step(ctx context.Context, taskID string, attempt int) error {
	task, err := o.tasks.GetByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", taskID, err)
	}
	if task.State.IsTerminal() {
		o.logger.Debug().Str("task_id", taskID).Str("state", string(task.State)).
			Msg("orchestrator: poll step on terminal task, dropping")
		return nil
	}
	if task.ProviderTaskID == "" {
		// Submission never completed; the staleness sweep owns this task.
		o.logger.Warn().Str("task_id", taskID).Msg("orchestrator: poll step without provider task id, dropping")
		return nil
	}

	st, err := o.provider.Status(ctx, task.ProviderTaskID)
	if err != nil {
		return o.handleStatusError(ctx, task, attempt, err)
	}

	if err := o.tasks.MarkPolling(ctx, task.ID, attempt, st.State); err != nil {
		return fmt.Errorf("mark polling: %w", err)
	}
	if task.LastProviderState != st.State && !st.State.IsTerminal() {
		o.notifyProgress(ctx, task, st.State, attempt)
	}
	task.Attempt = attempt
	task.LastProviderState = st.State

	switch st.State {
	case domain.ProviderStateSucceeded:
		if st.VideoURL == "" {
			// A success without a result is a provider bug; treat it as a
			// failed generation rather than hand the user a dead link.
			return o.HandleFailure(ctx, task, FailureReason{
				Kind:    ReasonProviderFailed,
				Message: "provider reported success without a video",
				Refund:  true,
			})
		}
		return o.HandleSuccess(ctx, task, st)

	case domain.ProviderStateFailed:
		msg := st.ErrorMessage
		if msg == "" {
			msg = "generation failed"
		}
		return o.HandleFailure(ctx, task, FailureReason{
			Kind:    ReasonProviderFailed,
			Message: msg,
			Refund:  true,
		})

	default:
		// Waiting, running, or a state this build does not know. Unknown
		// states still burn attempts so a misbehaving provider cannot pin a
		// task forever.
		return o.continueOrGiveUp(ctx, task, attempt, o.cfg.PollInterval)
	}
}

// handleStatusError decides what one failed status query means. No status
// error is terminal by itself: the generation may well be running fine, so
// the step burns an attempt and reschedules with a delay shaped by the error.
func (o *Orchestrator) handleStatusError(ctx context.Context, task *domain.GenerationTask, attempt int, cause error) error {
	if err := o.tasks.MarkPolling(ctx, task.ID, attempt, domain.ProviderStateUnknown); err != nil {
		return fmt.Errorf("mark polling: %w", err)
	}
	task.Attempt = attempt

	var delay time.Duration
	switch {
	case runway.IsRateLimited(cause):
		delay = o.cfg.RateLimitedDelay
	case runway.IsTimeout(cause):
		delay = o.cfg.PollInterval
	default:
		delay = 2 * o.cfg.PollInterval
	}
	o.logger.Warn().Err(cause).Str("task_id", task.ID).Int("attempt", attempt).
		Dur("next_in", delay).Msg("orchestrator: status query failed")
	return o.continueOrGiveUp(ctx, task, attempt, delay)
}

// continueOrGiveUp schedules the next poll step, or finalizes the task as
// failed once the attempt budget is spent.
func (o *Orchestrator) continueOrGiveUp(ctx context.Context, task *domain.GenerationTask, attempt int, delay time.Duration) error {
	if attempt >= o.cfg.MaxAttempts {
		return o.HandleFailure(ctx, task, FailureReason{
			Kind:    ReasonGiveUp,
			Message: fmt.Sprintf("no result after %d status checks", attempt),
			Refund:  true,
		})
	}
	msg := pollqueue.Message{TaskID: task.ID, Attempt: attempt + 1}
	if err := o.queue.Enqueue(ctx, msg, delay); err != nil {
		return fmt.Errorf("schedule poll step: %w", err)
	}
	return nil
}

// notifyProgress is best effort; a dropped progress message costs nothing.
func (o *Orchestrator) notifyProgress(ctx context.Context, task *domain.GenerationTask, state domain.ProviderState, attempt int) {
	if err := o.notifier.Progress(ctx, task.OwnerID, task.ID, task.Locale, state, attempt, o.cfg.MaxAttempts); err != nil {
		o.logger.Debug().Err(err).Str("task_id", task.ID).Msg("orchestrator: progress notification skipped")
	}
}
