package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"carousel/internal/domain"
	"carousel/internal/drive"
	"carousel/internal/events"
	"carousel/internal/jobs"
)

// JobService is the job lifecycle surface used by the HTTP API.
type JobService interface {
	Create(ctx context.Context, in jobs.CreateInput) (string, error)
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	List(ctx context.Context, order domain.ListOrder) ([]domain.Job, error)
	Delete(ctx context.Context, jobID string) error
}

// EventSource hands out notifier subscriptions.
type EventSource interface {
	Subscribe(jobID string) *events.Subscription
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Jobs      JobService
	Templates domain.TemplateRepository
	Events    EventSource
	Drive     *drive.Sessions
	Exporter  *drive.Exporter
	Images    ImageFetcher
	DB        Pinger
	Logger    zerolog.Logger

	// Heartbeat is the idle interval between SSE keep-alive comments.
	Heartbeat time.Duration

	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

func NewApp(service JobService, templates domain.TemplateRepository, source EventSource, logger zerolog.Logger) *App {
	return &App{
		Jobs:      service,
		Templates: templates,
		Events:    source,
		Logger:    logger,
		Heartbeat: 15 * time.Second,
		validate:  validator.New(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	writeJSONError(w, status, code, message)
}

// fail maps a domain error onto an HTTP response.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrAuthenticationRequired):
		a.error(w, http.StatusUnauthorized, "unauthorized", "authentication required")
	case errors.Is(err, domain.ErrInvalidJob):
		a.error(w, http.StatusBadRequest, "invalid_job", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, drive.ErrNoSession):
		a.error(w, http.StatusConflict, "drive_not_connected", "connect Google Drive first")
	case errors.Is(err, drive.ErrNothingToExport):
		a.error(w, http.StatusConflict, "nothing_to_export", "job has no finished images")
	case errors.Is(err, domain.ErrStoreWrite), errors.Is(err, domain.ErrStoreRead):
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("http: store unavailable")
		a.error(w, http.StatusServiceUnavailable, "store_unavailable", "job store is unavailable, try again")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("http: request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func currentUserID(r *http.Request) string {
	return domain.UserIDFromContext(r.Context())
}
