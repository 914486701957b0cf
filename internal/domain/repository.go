package domain

import "context"

// JobRepository defines persistence for job entities.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	ListByUser(ctx context.Context, userID string, order ListOrder) ([]Job, error)
	Delete(ctx context.Context, jobID string) error
}

// JobProgressWriter is the write surface used by the processor while it
// advances a job. Every method refuses to touch terminal rows.
type JobProgressWriter interface {
	GetByID(ctx context.Context, jobID string) (*Job, error)
	MarkProcessing(ctx context.Context, jobID string, progress int, message string) error
	UpdateProgress(ctx context.Context, jobID string, progress int, message string) error
	SavePrompts(ctx context.Context, jobID string, prompts []GeneratedPrompt) error
	Complete(ctx context.Context, jobID string, imageURLs []string, message string) error
	Fail(ctx context.Context, jobID string, message string) error
}

// TemplateRepository handles persistence for carousel templates.
type TemplateRepository interface {
	Create(ctx context.Context, tpl *Template) error
	GetByID(ctx context.Context, id string) (*Template, error)
	ListByUser(ctx context.Context, userID string) ([]Template, error)
}
