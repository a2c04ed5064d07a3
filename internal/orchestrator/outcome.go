package orchestrator

import (
	"context"

	"motionbooth/internal/domain"
)

// FailureReason carries what went wrong plus how to reconcile it.
type FailureReason struct {
	// Kind selects the user-facing template; one of the Reason* constants
	// below.
	Kind string
	// Message is the canonical reason persisted on the task row.
	Message string
	// Refund is false only when the task never consumed quota.
	Refund bool
}

// HandleSuccess finalizes a task with a provider-delivered result. Safe under
// at-least-once invocation: the state write is conditional and notification
// is deduplicated through notified_at.
func (o *Orchestrator) HandleSuccess(ctx context.Context, task *domain.GenerationTask, st domain.ProviderStatus) error {
	started := o.now()
	won, err := o.tasks.FinalizeSuccess(ctx, task.ID, st.VideoURL, st.ThumbnailURL)
	if err != nil {
		return err
	}
	if !won {
		o.logger.Info().Str("task_id", task.ID).Msg("orchestrator: task already finalized, only re-checking notification")
	}

	o.notifyOutcome(ctx, task, domain.Notification{
		Event:        domain.NotifyEventCompleted,
		OwnerID:      task.OwnerID,
		TaskID:       task.ID,
		VideoURL:     st.VideoURL,
		ThumbnailURL: st.ThumbnailURL,
		Locale:       task.Locale,
	})

	if won {
		o.recordUsage(ctx, task.OwnerID, task.ID, "generation_succeeded", true, started, map[string]any{
			"attempt": task.Attempt,
		})
		o.logger.Info().Str("task_id", task.ID).Str("video_url", st.VideoURL).Msg("orchestrator: generation succeeded")
	}
	return nil
}

// HandleFailure finalizes a task as failed. The quota refund fires only when
// this invocation won the terminal transition, which makes the refund
// at-most-once no matter how often the failure path re-enters.
func (o *Orchestrator) HandleFailure(ctx context.Context, task *domain.GenerationTask, reason FailureReason) error {
	started := o.now()
	won, err := o.tasks.FinalizeFailure(ctx, task.ID, reason.Message, reason.Kind == ReasonGiveUp)
	if err != nil {
		return err
	}

	if won && reason.Refund {
		if err := o.quota.Refund(ctx, task.OwnerID, o.cfg.QuotaCost); err != nil {
			// The user must still hear about the outcome; reconciliation of a
			// failed refund is an operator problem, not a notification gate.
			o.logger.Error().Err(err).Str("task_id", task.ID).Str("owner_id", task.OwnerID).
				Msg("orchestrator: quota refund failed")
		}
	}

	o.notifyOutcome(ctx, task, domain.Notification{
		Event:        domain.NotifyEventFailed,
		OwnerID:      task.OwnerID,
		TaskID:       task.ID,
		ErrorMessage: reason.Message,
		ReasonKind:   reason.Kind,
		Locale:       task.Locale,
	})

	if won {
		o.recordUsage(ctx, task.OwnerID, task.ID, "generation_failed", false, started, map[string]any{
			"reason_kind": reason.Kind,
			"refunded":    reason.Refund,
		})
		o.logger.Warn().Str("task_id", task.ID).Str("reason_kind", reason.Kind).Str("reason", reason.Message).
			Msg("orchestrator: generation failed")
	}
	return nil
}

// notifyOutcome delivers the terminal notification at most once per task.
// notified_at is the dedup marker: a crash after the state write but before
// notification leaves it unset, so the next re-entry delivers; once delivery
// succeeds, further re-entries skip.
func (o *Orchestrator) notifyOutcome(ctx context.Context, task *domain.GenerationTask, n domain.Notification) {
	fresh, err := o.tasks.GetByID(ctx, task.ID)
	if err == nil && fresh.NotifiedAt != nil {
		return
	}
	if err != nil {
		o.logger.Warn().Err(err).Str("task_id", task.ID).Msg("orchestrator: notification dedup read failed, delivering anyway")
	}
	if err := o.notifier.Notify(ctx, n); err != nil {
		// Left un-stamped on purpose: the recheck path retries delivery.
		o.logger.Error().Err(err).Str("task_id", task.ID).Str("event", string(n.Event)).
			Msg("orchestrator: outcome notification failed")
		return
	}
	if err := o.tasks.MarkNotified(ctx, task.ID); err != nil {
		o.logger.Warn().Err(err).Str("task_id", task.ID).Msg("orchestrator: notified_at not stamped")
	}
}

// Failure reason kinds.
const (
	ReasonContentRejected    = "content_rejected"
	ReasonProviderFailed     = "provider_failed"
	ReasonServiceUnavailable = "service_unavailable"
	ReasonQuotaExceeded      = "quota_exceeded"
	ReasonGiveUp             = "give_up"
)
