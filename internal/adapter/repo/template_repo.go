package repo

import (
	"context"
	"fmt"
	"time"

	"carousel/internal/domain"
	"carousel/internal/infra"
	"carousel/internal/sqlinline"
)

// TemplateRepositoryPG implements domain.TemplateRepository.
type TemplateRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewTemplateRepository(sql infra.SQLExecutor) *TemplateRepositoryPG {
	return &TemplateRepositoryPG{sql: sql}
}

func (r *TemplateRepositoryPG) Create(ctx context.Context, tpl *domain.Template) error {
	if tpl == nil {
		return fmt.Errorf("template is nil")
	}
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = time.Now().UTC()
	}
	_, err := r.sql.Exec(ctx, sqlinline.QInsertTemplate, tpl.ID, tpl.UserID, tpl.Name, tpl.Description, tpl.ImageURL, tpl.CreatedAt)
	return err
}

func (r *TemplateRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	var tpl domain.Template
	row := r.sql.QueryRow(ctx, sqlinline.QSelectTemplateByID, id)
	if err := row.Scan(&tpl.ID, &tpl.UserID, &tpl.Name, &tpl.Description, &tpl.ImageURL, &tpl.CreatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &tpl, nil
}

func (r *TemplateRepositoryPG) ListByUser(ctx context.Context, userID string) ([]domain.Template, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectTemplatesByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]domain.Template, 0)
	for rows.Next() {
		var tpl domain.Template
		if err := rows.Scan(&tpl.ID, &tpl.UserID, &tpl.Name, &tpl.Description, &tpl.ImageURL, &tpl.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, tpl)
	}
	return items, rows.Err()
}

var _ domain.TemplateRepository = (*TemplateRepositoryPG)(nil)
