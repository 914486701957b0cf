package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"carousel/internal/http/handlers"
	"carousel/internal/middleware"
)

// Options configures the API router.
type Options struct {
	JWTSecret       string
	RateLimitPerMin int
	CORSOrigins     []string
	// Static serves stored images under /static when set.
	Static http.Handler
	Logger zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	if opts.Static != nil {
		r.Mount("/static", http.StripPrefix("/static", opts.Static))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))

		r.Route("/v1/jobs", func(r chi.Router) {
			r.Get("/", app.ListJobs)
			r.Post("/", app.CreateJob)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", app.GetJob)
				r.Delete("/", app.DeleteJob)
				r.Get("/events", app.JobEvents)
				r.Get("/archive", app.DownloadArchive)
				r.Post("/export/drive", app.ExportToDrive)
			})
		})
		r.Get("/v1/events", app.UserEvents)

		r.Route("/v1/templates", func(r chi.Router) {
			r.Get("/", app.ListTemplates)
			r.Post("/", app.CreateTemplate)
		})

		r.Route("/v1/integrations/drive", func(r chi.Router) {
			r.Put("/token", app.PutDriveToken)
			r.Delete("/token", app.DeleteDriveToken)
		})
	})

	return r
}

// NewWorkerRouter exposes the worker function endpoint behind the shared
// service token.
func NewWorkerRouter(fns *handlers.Functions, token string, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.Recoverer, middleware.Logger(logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.With(middleware.ServiceToken(strings.TrimSpace(token))).Post("/functions/generate-images", fns.GenerateImages)
	return r
}
