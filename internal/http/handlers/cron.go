package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// CronCheckTasks is the scheduled sweep entry point. It is guarded by a
// shared secret instead of a user token; schedulers cannot hold JWTs.
func (a *App) CronCheckTasks(w http.ResponseWriter, r *http.Request) {
	if !a.cronAuthorized(r) {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid cron secret")
		return
	}
	owners, err := a.Service.SweepStale(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: sweep failed")
		a.error(w, http.StatusInternalServerError, "internal", "sweep failed")
		return
	}
	a.json(w, http.StatusOK, map[string]int{"owners_checked": owners})
}

func (a *App) cronAuthorized(r *http.Request) bool {
	if a.CronSecret == "" {
		return false
	}
	provided := r.Header.Get("X-Cron-Secret")
	if provided == "" {
		auth := r.Header.Get("Authorization")
		if strings.HasPrefix(auth, "Bearer ") {
			provided = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(a.CronSecret)) == 1
}
