package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to the `errors` table:
//
//	errors (id, workflow, error_type, message, context JSONB, created_at)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO errors (id, workflow, error_type, message, context, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	var evCtx any
	if e.Context != "" {
		evCtx = e.Context
	}
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.Workflow,
		sql.NullString{String: e.ErrorType, Valid: e.ErrorType != ""},
		e.Message,
		evCtx,
		e.CreatedAt,
	)
	return err
}
