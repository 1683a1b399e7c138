package httpapi

import (
	"net/http"
	"time"

	"server/internal/http/handlers"
	custommw "server/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Options carries the cross-cutting pieces the router wires in front of the
// handlers.
type Options struct {
	Logger          zerolog.Logger
	CountryLookup   custommw.CountryLookup
	DefaultLocale   string
	AllowedOrigins  []string
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		custommw.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		custommw.Logger(opts.Logger),
		custommw.I18N(opts.DefaultLocale, opts.CountryLookup),
		custommw.Identity,
		custommw.CORS(opts.AllowedOrigins),
	)
	if opts.RateLimitPerMin > 0 {
		r.Use(custommw.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/enhancements", func(r chi.Router) {
		r.Post("/", app.EnhanceCreate)
		r.Get("/{job_id}", app.EnhanceStatus)
		r.Get("/{job_id}/archive", app.EnhanceArchive)
	})

	r.Get("/v1/credits", app.CreditsBalance)

	return r
}
