package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"motionbooth/internal/domain"
	"motionbooth/internal/infra"
	"motionbooth/internal/middleware"
)

// GenerationService is the slice of the orchestrator the HTTP surface uses.
type GenerationService interface {
	Submit(ctx context.Context, task *domain.GenerationTask) error
	RecheckOwner(ctx context.Context, ownerID, locale string) (completed, stillRunning int, err error)
	SweepStale(ctx context.Context) (owners int, err error)
}

type App struct {
	Tasks      domain.TaskRepository
	Quota      domain.QuotaLedger
	Service    GenerationService
	Logger     infra.Logger
	CronSecret string
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
