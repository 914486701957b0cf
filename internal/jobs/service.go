// Package jobs coordinates the job lifecycle: creation, the hand-off to the
// worker, observation through the poller and deletion. It keeps the local
// mirror and the notifier in step with the job store.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"carousel/internal/domain"
	"carousel/internal/events"
	"carousel/internal/mirror"
	"carousel/internal/poller"
	"carousel/internal/processor"
)

// Store is the job store surface the service needs.
type Store interface {
	domain.JobRepository
	Fail(ctx context.Context, jobID string, message string) error
}

// Watcher starts and stops job watches.
type Watcher interface {
	Watch(jobID string) *poller.Watch
	Stop(jobID string)
}

// CreateInput is what a caller supplies to start a job.
type CreateInput struct {
	Name        string          `json:"name" validate:"required,max=200"`
	TemplateID  string          `json:"template_id" validate:"required,max=100"`
	Variants    int             `json:"variants" validate:"required,min=1"`
	DataType    domain.DataType `json:"data_type" validate:"required,oneof=csv script instructions"`
	DataContent json.RawMessage `json:"data_content" validate:"required"`
}

// Service implements the job lifecycle operations.
type Service struct {
	store     Store
	templates domain.TemplateRepository
	mirror    mirror.Store
	publisher events.Publisher
	trigger   processor.Trigger
	watcher   Watcher
	validate  *validator.Validate
	logger    zerolog.Logger

	// async runs deferred work; tests replace it to run synchronously.
	async          func(func())
	triggerTimeout time.Duration
	retryDelay     time.Duration
	now            func() time.Time
	newID          func() string
}

// failAttempts bounds how often a trigger failure is written to the store.
const failAttempts = 3

// Option customises a Service.
type Option func(*Service)

// WithTriggerTimeout bounds each trigger invocation.
func WithTriggerTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.triggerTimeout = d
	}
}

// WithAsync replaces the goroutine launcher used for deferred triggers.
func WithAsync(fn func(func())) Option {
	return func(s *Service) {
		s.async = fn
	}
}

func NewService(store Store, templates domain.TemplateRepository, mirrorStore mirror.Store, publisher events.Publisher, trigger processor.Trigger, watcher Watcher, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:          store,
		templates:      templates,
		mirror:         mirrorStore,
		publisher:      publisher,
		trigger:        trigger,
		watcher:        watcher,
		validate:       validator.New(),
		logger:         logger,
		async:          func(fn func()) { go fn() },
		triggerTimeout: 30 * time.Second,
		retryDelay:     time.Second,
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create records a new queued job and schedules its processing. It returns as
// soon as the job is stored; the trigger runs afterwards.
func (s *Service) Create(ctx context.Context, in CreateInput) (string, error) {
	userID := domain.UserIDFromContext(ctx)
	if userID == "" {
		return "", domain.ErrAuthenticationRequired
	}
	in.Name = strings.TrimSpace(in.Name)
	in.TemplateID = strings.TrimSpace(in.TemplateID)
	if err := s.validate.Struct(in); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidJob, err)
	}
	if in.Variants > domain.MaxVariants {
		return "", fmt.Errorf("%w: variants must be at most %d", domain.ErrInvalidJob, domain.MaxVariants)
	}
	if err := validatePayload(in.DataType, in.DataContent); err != nil {
		return "", err
	}

	now := s.now().UTC()
	job := &domain.Job{
		ID:          s.newID(),
		UserID:      userID,
		Name:        in.Name,
		TemplateID:  in.TemplateID,
		Status:      domain.JobStatusQueued,
		Progress:    0,
		Variants:    in.Variants,
		DataType:    in.DataType,
		DataContent: in.DataContent,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	logger := s.logger.With().Str("job_id", job.ID).Str("user_id", userID).Logger()

	if tpl, err := s.templates.GetByID(ctx, in.TemplateID); err != nil {
		logger.Warn().Err(err).Str("template_id", in.TemplateID).Msg("jobs: template lookup failed, snapshot left blank")
	} else if tpl.UserID != userID {
		logger.Warn().Str("template_id", in.TemplateID).Msg("jobs: template belongs to another user, snapshot left blank")
	} else {
		job.TemplateName = tpl.Name
		job.TemplateDescription = tpl.Description
		job.TemplateImageURL = tpl.ImageURL
	}

	if err := s.store.Create(ctx, job); err != nil {
		logger.Error().Err(err).Msg("jobs: insert failed")
		return "", fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}
	if err := s.mirror.Upsert(ctx, job); err != nil {
		logger.Warn().Err(err).Msg("jobs: mirror write failed")
	}
	s.publisher.Publish(ctx, events.JobEvent(events.KindCreated, job))
	logger.Info().Int("variants", job.Variants).Str("data_type", string(job.DataType)).Msg("jobs: created")

	snapshot := job.Clone()
	triggerCtx := context.WithoutCancel(ctx)
	s.async(func() { s.startProcessing(triggerCtx, snapshot) })
	return job.ID, nil
}

// startProcessing invokes the worker for job. A failed invocation is the only
// case where this service writes a terminal status itself. The invocation is
// never retried; only the failure write is.
func (s *Service) startProcessing(ctx context.Context, job *domain.Job) {
	logger := s.logger.With().Str("job_id", job.ID).Logger()
	invokeCtx, cancel := context.WithTimeout(ctx, s.triggerTimeout)
	err := s.trigger.Invoke(invokeCtx, processor.RequestFromJob(job))
	cancel()
	if err == nil {
		logger.Debug().Msg("jobs: processor triggered")
		s.watcher.Watch(job.ID)
		return
	}

	msg := err.Error()
	logger.Error().Err(err).Msg("jobs: processor trigger failed")
	ferr := s.recordFailure(ctx, job.ID, msg)
	switch {
	case ferr == nil:
	case errors.Is(ferr, domain.ErrNotFound):
		// Deleted while the trigger ran; nothing left to report.
		logger.Info().Msg("jobs: job deleted before trigger failure was recorded")
		return
	case errors.Is(ferr, domain.ErrInvalidTransition):
		// The worker got the job after all; observe what it writes.
		logger.Warn().Err(ferr).Msg("jobs: job moved on despite trigger failure")
		s.watcher.Watch(job.ID)
		return
	default:
		// The store still holds the job as queued; keep observing it.
		logger.Error().Err(ferr).Msg("jobs: failed to record trigger failure")
		s.watcher.Watch(job.ID)
		return
	}
	job.Status = domain.JobStatusFailed
	job.Message = msg
	job.UpdatedAt = s.now().UTC()
	if merr := s.mirror.Upsert(ctx, job); merr != nil {
		logger.Warn().Err(merr).Msg("jobs: mirror write failed")
	}
	s.publisher.Publish(ctx, events.JobEvent(events.KindUpdated, job))
}

// recordFailure writes the failed status, retrying transient store errors.
func (s *Service) recordFailure(ctx context.Context, jobID, msg string) error {
	var err error
	for attempt := 0; attempt < failAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(s.retryDelay * time.Duration(attempt)):
			}
		}
		err = s.store.Fail(ctx, jobID, msg)
		if err == nil || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidTransition) {
			return err
		}
	}
	return err
}

// Get returns one of the caller's jobs. When the store cannot be read the
// mirrored copy is returned instead.
func (s *Service) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	userID := domain.UserIDFromContext(ctx)
	if userID == "" {
		return nil, domain.ErrAuthenticationRequired
	}
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("jobs: store read failed, serving mirror")
		job, err = s.mirror.Get(ctx, jobID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.ErrNotFound
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreRead, err)
		}
	}
	if job.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

// List returns the caller's jobs in the requested creation order, falling back
// to the mirror when the store cannot be read.
func (s *Service) List(ctx context.Context, order domain.ListOrder) ([]domain.Job, error) {
	userID := domain.UserIDFromContext(ctx)
	if userID == "" {
		return nil, domain.ErrAuthenticationRequired
	}
	jobs, err := s.store.ListByUser(ctx, userID, order)
	if err == nil {
		return jobs, nil
	}
	s.logger.Warn().Err(err).Str("user_id", userID).Msg("jobs: store list failed, serving mirror")

	all, merr := s.mirror.All(ctx)
	if merr != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreRead, merr)
	}
	out := make([]domain.Job, 0, len(all))
	for _, j := range all {
		if j.UserID == userID {
			out = append(out, j)
		}
	}
	sortByCreated(out, order)
	return out, nil
}

// Delete removes a job from the store first; the mirror is only touched once
// the store confirmed the delete.
func (s *Service) Delete(ctx context.Context, jobID string) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	logger := s.logger.With().Str("job_id", jobID).Logger()
	if err := s.store.Delete(ctx, jobID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		logger.Error().Err(err).Msg("jobs: delete failed")
		return fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}
	s.watcher.Stop(jobID)
	if err := s.mirror.Delete(ctx, jobID); err != nil {
		logger.Warn().Err(err).Msg("jobs: mirror delete failed")
	}
	s.publisher.Publish(ctx, events.Event{Kind: events.KindDeleted, JobID: jobID, UserID: job.UserID})
	logger.Info().Msg("jobs: deleted")
	return nil
}

// Resume restarts watches for every mirrored job that is not terminal so jobs
// in flight during a restart keep being observed.
func (s *Service) Resume(ctx context.Context) (int, error) {
	all, err := s.mirror.All(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range all {
		if !j.Status.Terminal() {
			s.watcher.Watch(j.ID)
			n++
		}
	}
	return n, nil
}

func validatePayload(t domain.DataType, raw json.RawMessage) error {
	if !json.Valid(raw) {
		return fmt.Errorf("%w: data_content is not valid JSON", domain.ErrInvalidJob)
	}
	switch t {
	case domain.DataTypeCSV:
		var rows []map[string]any
		if err := json.Unmarshal(raw, &rows); err != nil || len(rows) == 0 {
			return fmt.Errorf("%w: csv data must be a non-empty array of rows", domain.ErrInvalidJob)
		}
	default:
		var text string
		if err := json.Unmarshal(raw, &text); err != nil || strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: %s data must be a non-empty string", domain.ErrInvalidJob, t)
		}
	}
	return nil
}
