// Package mirror keeps a process-local, restart-surviving shadow of job
// records. It is never authoritative: every entry can be rebuilt from the job
// store, and it is only consulted when the store cannot be reached.
package mirror

import (
	"context"

	"carousel/internal/domain"
)

// Store is the local mirror contract. Get reports domain.ErrNotFound for
// unknown ids; Delete of an unknown id is not an error.
type Store interface {
	All(ctx context.Context) ([]domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	Upsert(ctx context.Context, job *domain.Job) error
	Delete(ctx context.Context, id string) error
}
