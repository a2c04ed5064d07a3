package orchestrator

import (
	"context"
	"fmt"

	"motionbooth/internal/domain"
)

// RecheckOwner re-queries the provider for one owner's recheckable tasks:
// stale non-terminal tasks that lost their poll loop, plus give-up failures
// that may have finished after the budget ran out. Returns how many tasks
// produced a result during this pass and how many are still running.
func (o *Orchestrator) RecheckOwner(ctx context.Context, ownerID, locale string) (completed, stillRunning int, err error) {
	cutoff := o.now().Add(-o.cfg.StaleAfter)
	tasks, err := o.tasks.ListRecheckable(ctx, ownerID, cutoff, o.cfg.RecheckTasksPerOwner)
	if err != nil {
		return 0, 0, fmt.Errorf("list recheckable: %w", err)
	}

	for i := range tasks {
		task := &tasks[i]
		done, running, rerr := o.recheckTask(ctx, task)
		if rerr != nil {
			o.logger.Warn().Err(rerr).Str("task_id", task.ID).Msg("orchestrator: recheck step failed")
			continue
		}
		if done {
			completed++
		}
		if running {
			stillRunning++
		}
	}

	if completed > 0 || stillRunning > 0 {
		if err := o.notifier.RecheckSummary(ctx, ownerID, locale, completed, stillRunning); err != nil {
			o.logger.Debug().Err(err).Str("owner_id", ownerID).Msg("orchestrator: recheck summary skipped")
		}
	}
	return completed, stillRunning, nil
}

func (o *Orchestrator) recheckTask(ctx context.Context, task *domain.GenerationTask) (done, running bool, err error) {
	if task.ProviderTaskID == "" {
		// Submitted-state rows without a handle went down before the provider
		// answered; nothing is recoverable.
		return false, false, o.HandleFailure(ctx, task, FailureReason{
			Kind:    ReasonServiceUnavailable,
			Message: "generation lost before submission completed",
			Refund:  true,
		})
	}

	st, err := o.provider.Status(ctx, task.ProviderTaskID)
	if err != nil {
		return false, false, err
	}

	if task.State.IsTerminal() {
		return o.recheckTerminal(ctx, task, st)
	}

	switch st.State {
	case domain.ProviderStateSucceeded:
		if st.VideoURL == "" {
			return false, false, o.HandleFailure(ctx, task, FailureReason{
				Kind:    ReasonProviderFailed,
				Message: "provider reported success without a video",
				Refund:  true,
			})
		}
		return true, false, o.HandleSuccess(ctx, task, st)
	case domain.ProviderStateFailed:
		msg := st.ErrorMessage
		if msg == "" {
			msg = "generation failed"
		}
		return false, false, o.HandleFailure(ctx, task, FailureReason{
			Kind:    ReasonProviderFailed,
			Message: msg,
			Refund:  true,
		})
	default:
		// Still running somewhere; put it back on the queue rather than leave
		// it to the next sweep. A task already at its budget gives up here.
		if task.Attempt >= o.cfg.MaxAttempts {
			return false, false, o.continueOrGiveUp(ctx, task, task.Attempt, 0)
		}
		if qerr := o.continueOrGiveUp(ctx, task, task.Attempt, o.cfg.PollInterval); qerr != nil {
			return false, false, qerr
		}
		return false, true, nil
	}
}

// recheckTerminal handles a give-up failure whose generation finished after
// the fact. The failed state and its refund stand; the video is delivered as
// a bonus, once.
func (o *Orchestrator) recheckTerminal(ctx context.Context, task *domain.GenerationTask, st domain.ProviderStatus) (done, running bool, err error) {
	if st.State != domain.ProviderStateSucceeded || st.VideoURL == "" {
		return false, false, nil
	}
	won, err := o.tasks.RecordLateResult(ctx, task.ID, st.VideoURL, st.ThumbnailURL)
	if err != nil {
		return false, false, fmt.Errorf("record late result: %w", err)
	}
	if !won {
		return false, false, nil
	}
	if err := o.notifier.Notify(ctx, domain.Notification{
		Event:        domain.NotifyEventCompleted,
		OwnerID:      task.OwnerID,
		TaskID:       task.ID,
		VideoURL:     st.VideoURL,
		ThumbnailURL: st.ThumbnailURL,
		Locale:       task.Locale,
		Bonus:        true,
	}); err != nil {
		o.logger.Error().Err(err).Str("task_id", task.ID).Msg("orchestrator: late result notification failed")
	}
	o.logger.Info().Str("task_id", task.ID).Msg("orchestrator: late result delivered after give-up")
	return true, false, nil
}

// SweepStale is the cron entry point: find owners with recheckable tasks and
// run a recheck pass for each. Per-owner failures do not stop the sweep.
func (o *Orchestrator) SweepStale(ctx context.Context) (owners int, err error) {
	cutoff := o.now().Add(-o.cfg.StaleAfter)
	ids, err := o.tasks.ListRecheckableOwners(ctx, cutoff, o.cfg.SweepOwnersLimit)
	if err != nil {
		return 0, fmt.Errorf("list recheckable owners: %w", err)
	}
	for _, ownerID := range ids {
		if ctx.Err() != nil {
			return owners, ctx.Err()
		}
		if _, _, rerr := o.RecheckOwner(ctx, ownerID, ""); rerr != nil {
			o.logger.Error().Err(rerr).Str("owner_id", ownerID).Msg("orchestrator: sweep recheck failed")
			continue
		}
		owners++
	}
	if owners > 0 {
		o.logger.Info().Int("owners", owners).Msg("orchestrator: staleness sweep finished")
	}
	return owners, nil
}
