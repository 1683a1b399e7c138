package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"server/internal/credit"
	"server/internal/domain"
	"server/internal/jobs"
	"server/internal/middleware"

	"github.com/rs/zerolog"
)

// Runner executes one enhancement batch to a terminal state.
type Runner interface {
	Run(ctx context.Context, req jobs.Request) (*domain.Summary, error)
}

// ArchiveReader serves stored archives back to clients.
type ArchiveReader interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

type App struct {
	Coordinator Runner
	Jobs        domain.JobRepository
	Ledger      *credit.Ledger
	Archives    ArchiveReader
	Logger      zerolog.Logger
}

func NewApp(coord Runner, jobRepo domain.JobRepository, ledger *credit.Ledger, archives ArchiveReader, logger zerolog.Logger) *App {
	return &App{
		Coordinator: coord,
		Jobs:        jobRepo,
		Ledger:      ledger,
		Archives:    archives,
		Logger:      logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, message string) {
	a.json(w, code, map[string]string{"error": slug, "message": message})
}

func (a *App) currentUserID(r *http.Request) *string {
	return middleware.UserIDFromContext(r.Context())
}
