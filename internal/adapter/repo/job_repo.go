package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"carousel/internal/domain"
	"carousel/internal/infra"
	"carousel/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository and domain.JobProgressWriter
// on top of the jobs table.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	data := []byte(job.DataContent)
	if len(data) == 0 {
		data = []byte("null")
	}
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.sql.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.UserID,
		job.Name,
		job.TemplateID,
		job.TemplateName,
		job.TemplateDescription,
		job.TemplateImageURL,
		string(job.Status),
		job.Progress,
		job.Variants,
		string(job.DataType),
		data,
		job.Message,
		createdAt,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobByID, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListByUser returns the user's jobs ordered by creation time.
func (r *JobRepositoryPG) ListByUser(ctx context.Context, userID string, order domain.ListOrder) ([]domain.Job, error) {
	query := sqlinline.QSelectJobsByUserNewest
	if order == domain.OrderOldestFirst {
		query = sqlinline.QSelectJobsByUserOldest
	}
	rows, err := r.sql.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Delete removes a job. Deleting a missing job reports domain.ErrNotFound.
func (r *JobRepositoryPG) Delete(ctx context.Context, jobID string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteJob, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkProcessing moves a queued job into processing.
func (r *JobRepositoryPG) MarkProcessing(ctx context.Context, jobID string, progress int, message string) error {
	progress = clampProgress(progress)
	return r.update(ctx, sqlinline.QMarkJobProcessing, jobID, domain.JobStatusProcessing, progress, progress, message)
}

// UpdateProgress advances progress of a processing job. Lower values than the
// stored one are ignored by the statement.
func (r *JobRepositoryPG) UpdateProgress(ctx context.Context, jobID string, progress int, message string) error {
	progress = clampProgress(progress)
	return r.update(ctx, sqlinline.QUpdateJobProgress, jobID, domain.JobStatusProcessing, progress, progress, message)
}

// SavePrompts stores the generated prompt records of a processing job.
func (r *JobRepositoryPG) SavePrompts(ctx context.Context, jobID string, prompts []domain.GeneratedPrompt) error {
	if prompts == nil {
		prompts = []domain.GeneratedPrompt{}
	}
	raw, err := json.Marshal(prompts)
	if err != nil {
		return fmt.Errorf("encode prompts: %w", err)
	}
	return r.update(ctx, sqlinline.QUpdateJobPrompts, jobID, domain.JobStatusProcessing, keepProgress, raw)
}

// Complete marks a processing job completed with its result images.
func (r *JobRepositoryPG) Complete(ctx context.Context, jobID string, imageURLs []string, message string) error {
	if imageURLs == nil {
		imageURLs = []string{}
	}
	return r.update(ctx, sqlinline.QCompleteJob, jobID, domain.JobStatusCompleted, 100, imageURLs, message)
}

// Fail marks a non-terminal job failed.
func (r *JobRepositoryPG) Fail(ctx context.Context, jobID string, message string) error {
	return r.update(ctx, sqlinline.QFailJob, jobID, domain.JobStatusFailed, keepProgress, message)
}

// keepProgress marks writes that leave the stored progress as it is.
const keepProgress = -1

// update runs a lifecycle statement moving jobID to status to. When the
// statement matches no row the current row is read back to tell a missing job
// (domain.ErrNotFound) from a refused transition (domain.ErrInvalidTransition).
func (r *JobRepositoryPG) update(ctx context.Context, query, jobID string, to domain.JobStatus, progress int, args ...any) error {
	tag, err := r.sql.Exec(ctx, query, append([]any{jobID}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	current, err := r.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if progress == keepProgress {
		progress = current.Progress
	}
	if err := domain.ValidateTransition(current.Status, current.Progress, to, progress); err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s", domain.ErrInvalidTransition, jobID, current.Status)
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job      domain.Job
		status   string
		dataType string
		data     []byte
		prompts  []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Name,
		&job.TemplateID,
		&job.TemplateName,
		&job.TemplateDescription,
		&job.TemplateImageURL,
		&status,
		&job.Progress,
		&job.Variants,
		&dataType,
		&data,
		&job.Message,
		&job.ImageURLs,
		&prompts,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.DataType = domain.DataType(dataType)
	if len(data) > 0 && string(data) != "null" {
		job.DataContent = append(json.RawMessage(nil), data...)
	}
	if len(prompts) > 0 {
		if err := json.Unmarshal(prompts, &job.Prompts); err != nil {
			return nil, fmt.Errorf("decode prompts: %w", err)
		}
	}
	if len(job.ImageURLs) == 0 {
		job.ImageURLs = nil
	}
	if len(job.Prompts) == 0 {
		job.Prompts = nil
	}
	return &job, nil
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

var (
	_ domain.JobRepository     = (*JobRepositoryPG)(nil)
	_ domain.JobProgressWriter = (*JobRepositoryPG)(nil)
)
