package domain

import (
	"context"
	"time"
)

// TaskRepository is the durable task record. The persisted state column is the
// only cross-invocation coordination point: finalization races are resolved by
// conditional writes, not in-memory locks.
type TaskRepository interface {
	Create(ctx context.Context, task *GenerationTask) error
	GetByID(ctx context.Context, taskID string) (*GenerationTask, error)

	// MarkSubmitted records the provider handle and moves pending -> submitted.
	MarkSubmitted(ctx context.Context, taskID, providerTaskID string) error

	// MarkPolling moves submitted -> polling and records the attempt counter
	// plus the provider state observed by that attempt. Terminal rows are left
	// untouched.
	MarkPolling(ctx context.Context, taskID string, attempt int, observed ProviderState) error

	// FinalizeSuccess writes the terminal succeeded state iff the row is still
	// non-terminal, returning true when this call won the transition.
	FinalizeSuccess(ctx context.Context, taskID, videoURL, thumbnailURL string) (bool, error)

	// FinalizeFailure writes the terminal failed state iff the row is still
	// non-terminal, returning true when this call won the transition. gaveUp
	// marks budget-exhausted failures, which remain eligible for late-result
	// rechecks.
	FinalizeFailure(ctx context.Context, taskID, errorMessage string, gaveUp bool) (bool, error)

	// MarkNotified stamps notified_at after a delivered notification.
	MarkNotified(ctx context.Context, taskID string) error

	// RecordLateResult attaches a provider result that arrived after a give-up
	// failure. The terminal state is immutable; only the result columns are
	// written, and only once.
	RecordLateResult(ctx context.Context, taskID, videoURL, thumbnailURL string) (bool, error)

	// ListRecheckable returns an owner's tasks worth re-querying: non-terminal
	// tasks with a provider handle past the staleness cutoff, plus give-up
	// failures without a recorded result. Newest first.
	ListRecheckable(ctx context.Context, ownerID string, cutoff time.Time, limit int) ([]GenerationTask, error)

	// ListRecheckableOwners returns distinct owners with recheckable tasks,
	// for the sweep.
	ListRecheckableOwners(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// QuotaLedger reserves and refunds per-owner generation quota. A given task's
// quota effect is applied and, where applicable, reversed at most once each;
// the caller guarantees that by only refunding when it won the failed
// transition.
type QuotaLedger interface {
	Reserve(ctx context.Context, ownerID string, amount int) (remaining int, err error)
	Refund(ctx context.Context, ownerID string, amount int) error
	Get(ctx context.Context, ownerID string) (*QuotaEntry, error)
}

// Notifier delivers terminal outcomes (and best-effort progress updates) back
// through the chat channel. Implementations must tolerate duplicate calls for
// the same logical outcome.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Progress(ctx context.Context, ownerID, taskID, locale string, state ProviderState, attempt, budget int) error
	RecheckSummary(ctx context.Context, ownerID, locale string, completed, stillRunning int) error
}

// UsageRecorder appends diagnostic usage events. Failures are logged by
// callers and never affect task handling.
type UsageRecorder interface {
	Record(ctx context.Context, ownerID, taskID, eventType string, success bool, latency time.Duration, properties map[string]any) error
}
