package handlers

import (
	"net/http"

	"server/internal/domain"
)

// CreditsBalance reports the caller's remaining free-trial items and paid
// credits. Anonymous callers see the untouched free allowance.
func (a *App) CreditsBalance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == nil {
		a.json(w, http.StatusOK, map[string]any{
			"free_remaining": domain.FreeTrialAllowance,
			"credits":        0.0,
		})
		return
	}

	balance, err := a.Ledger.Balance(r.Context(), *userID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: balance lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load balance")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"free_remaining": balance.FreeRemainder(),
		"credits":        balance.Credits,
	})
}
