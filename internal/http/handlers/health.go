package handlers

import (
	"net/http"
)

// Health is the liveness probe. It deliberately touches no dependencies so
// a degraded database or generation service never flaps the probe.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok", "service": "enhancement-api"})
}
