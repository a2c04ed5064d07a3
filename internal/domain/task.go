package domain

import "time"

// TaskState enumerates generation task lifecycle states.
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateSubmitted TaskState = "submitted"
	TaskStatePolling   TaskState = "polling"
	TaskStateSucceeded TaskState = "succeeded"
	TaskStateFailed    TaskState = "failed"
)

// IsTerminal reports whether no further transitions may occur.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateSucceeded || s == TaskStateFailed
}

// GenerationTask tracks one photo-to-video (or text-to-video) request
// end-to-end. Transitions are monotonic:
// pending -> submitted -> polling -> succeeded|failed.
type GenerationTask struct {
	ID                 string
	OwnerID            string
	ImageRef           string // empty for text-to-video
	PromptText         string
	ProviderTaskID     string // empty until submission succeeds
	State              TaskState
	ResultVideoURL     string
	ResultThumbnailURL string
	ErrorMessage       string
	Attempt            int
	// LastProviderState is the most recent normalized state observed by a poll
	// step; progress updates fire only when it changes.
	LastProviderState ProviderState
	// GaveUp marks a failure produced by exhausting the poll budget rather
	// than by the provider. Such tasks stay eligible for a late-result
	// recheck.
	GaveUp      bool
	Locale      string
	NotifiedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// ProviderState is the normalized vocabulary for provider-reported task states.
type ProviderState string

const (
	ProviderStateWaiting   ProviderState = "waiting"
	ProviderStateRunning   ProviderState = "running"
	ProviderStateSucceeded ProviderState = "succeeded"
	ProviderStateFailed    ProviderState = "failed"
	ProviderStateUnknown   ProviderState = "unknown"
)

// IsTerminal reports whether the provider considers the work finished.
func (s ProviderState) IsTerminal() bool {
	return s == ProviderStateSucceeded || s == ProviderStateFailed
}

// ProviderStatus is the transient result of one status query. It is never
// persisted; it only drives GenerationTask transitions.
type ProviderStatus struct {
	State        ProviderState
	VideoURL     string
	ThumbnailURL string
	ErrorCode    string
	ErrorMessage string
}

// QuotaEntry is a per-owner consumption counter for the current period.
type QuotaEntry struct {
	OwnerID     string
	Used        int
	Limit       int
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Remaining returns the unconsumed quota for the period.
func (q QuotaEntry) Remaining() int {
	if q.Limit <= q.Used {
		return 0
	}
	return q.Limit - q.Used
}

// NotifyEvent enumerates terminal outcomes delivered to the owner.
type NotifyEvent string

const (
	NotifyEventCompleted NotifyEvent = "completed"
	NotifyEventFailed    NotifyEvent = "failed"
)

// Notification carries everything the chat channel needs to tell the owner
// about a terminal outcome. Receivers must tolerate duplicate deliveries for
// the same logical outcome.
type Notification struct {
	Event        NotifyEvent
	OwnerID      string
	TaskID       string
	VideoURL     string
	ThumbnailURL string
	ErrorMessage string
	// ReasonKind lets the channel pick a localized template for failures:
	// "content_rejected", "give_up", "provider_failed", "service_unavailable".
	ReasonKind string
	Locale     string
	// Bonus marks a late success delivered after the task was already
	// refunded and reported as given up.
	Bonus bool
}
