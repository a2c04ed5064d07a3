package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"motionbooth/internal/domain"
	"motionbooth/internal/middleware"
	"motionbooth/internal/provider/runway"
)

type generationRequest struct {
	ImageURL string `json:"image_url"`
	Prompt   string `json:"prompt"`
	Locale   string `json:"locale"`
}

type generationResponse struct {
	TaskID         string `json:"task_id"`
	State          string `json:"state"`
	RemainingQuota int    `json:"remaining_quota"`
}

type taskResponse struct {
	TaskID       string     `json:"task_id"`
	State        string     `json:"state"`
	VideoURL     string     `json:"video_url,omitempty"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	Error        string     `json:"error,omitempty"`
	Attempt      int        `json:"attempt"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// GenerationsCreate accepts one generation request, charges quota and submits
// it to the provider before answering. The caller gets the task handle; the
// outcome itself arrives later through the chat channel.
func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req generationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.ImageURL = strings.TrimSpace(req.ImageURL)
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.ImageURL == "" && req.Prompt == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "image_url or prompt is required")
		return
	}
	if req.ImageURL != "" && !isHTTPURL(req.ImageURL) {
		a.error(w, http.StatusBadRequest, "bad_request", "image_url must be an absolute http(s) url")
		return
	}

	locale := req.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	task := &domain.GenerationTask{
		ID:         uuid.NewString(),
		OwnerID:    userID,
		ImageRef:   req.ImageURL,
		PromptText: req.Prompt,
		State:      domain.TaskStatePending,
		Locale:     locale,
	}
	if err := a.Tasks.Create(r.Context(), task); err != nil {
		a.Logger.Error().Err(err).Msg("handlers: create task failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create task")
		return
	}

	if err := a.Service.Submit(r.Context(), task); err != nil {
		switch {
		case errors.Is(err, domain.ErrQuotaExceeded):
			a.error(w, http.StatusTooManyRequests, "quota_exceeded", "monthly generation quota exhausted")
		case runway.ClassifyErr(err) == runway.CategoryContentRejected:
			a.error(w, http.StatusUnprocessableEntity, "content_rejected", "the content was rejected by moderation")
		default:
			a.Logger.Error().Err(err).Str("task_id", task.ID).Msg("handlers: submission failed")
			a.error(w, http.StatusBadGateway, "provider_error", "generation could not be submitted")
		}
		return
	}

	remaining := 0
	if entry, err := a.Quota.Get(r.Context(), userID); err == nil {
		remaining = entry.Remaining()
	}
	a.json(w, http.StatusAccepted, generationResponse{
		TaskID:         task.ID,
		State:          string(task.State),
		RemainingQuota: remaining,
	})
}

func (a *App) GenerationsGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	taskID := chi.URLParam(r, "id")
	if taskID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	task, err := a.Tasks.GetByID(r.Context(), taskID)
	if err != nil || task.OwnerID != userID {
		a.error(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	a.json(w, http.StatusOK, taskResponse{
		TaskID:       task.ID,
		State:        string(task.State),
		VideoURL:     task.ResultVideoURL,
		ThumbnailURL: task.ResultThumbnailURL,
		Error:        task.ErrorMessage,
		Attempt:      task.Attempt,
		CreatedAt:    task.CreatedAt,
		CompletedAt:  task.CompletedAt,
	})
}

// GenerationsRecheck runs a provider recheck for the caller's stuck or
// given-up tasks, the manual counterpart of the cron sweep.
func (a *App) GenerationsRecheck(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	completed, stillRunning, err := a.Service.RecheckOwner(r.Context(), userID, locale)
	if err != nil {
		a.Logger.Error().Err(err).Str("owner_id", userID).Msg("handlers: recheck failed")
		a.error(w, http.StatusInternalServerError, "internal", "recheck failed")
		return
	}
	a.json(w, http.StatusOK, map[string]int{
		"completed":     completed,
		"still_running": stillRunning,
	})
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
