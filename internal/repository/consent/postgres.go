package consent

import (
	"context"
	"errors"

	"consent-bridge/internal/domain"
	"consent-bridge/internal/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres returns a Repository backed by Postgres.
func NewPostgres(pool *pgxpool.Pool, l *zap.Logger) Repository {
	return &postgresRepo{pool: pool, logger: logger.OrNop(l)}
}

func (r *postgresRepo) CreateBatch(ctx context.Context, b domain.ConsentBatch) error {
	const q = `
INSERT INTO consent_batches (id, source, size, applied, outcome, started_at)
VALUES ($1, $2, $3, 0, $4, $5)
`
	_, err := r.pool.Exec(ctx, q, b.ID, b.Source, b.Size, b.Outcome, b.StartedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *postgresRepo) AddItem(ctx context.Context, item domain.ConsentBatchItem) error {
	const q = `
INSERT INTO consent_batch_items (batch_id, sequence, email, customer_id, state, applied_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	_, err := r.pool.Exec(ctx, q, item.BatchID, item.Sequence, item.Email, item.CustomerID, string(item.State), item.AppliedAt)
	return err
}

func (r *postgresRepo) FinishBatch(ctx context.Context, id, outcome string, applied int, errMsg string) error {
	const q = `
UPDATE consent_batches
SET outcome = $2, applied = $3, error = $4, finished_at = now()
WHERE id = $1
`
	cmd, err := r.pool.Exec(ctx, q, id, outcome, applied, errMsg)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) GetBatch(ctx context.Context, id string) (*domain.ConsentBatch, error) {
	const q = `
SELECT id::text, source, size, applied, outcome, error, started_at, finished_at
FROM consent_batches
WHERE id = $1
`
	var b domain.ConsentBatch
	err := r.pool.QueryRow(ctx, q, id).Scan(&b.ID, &b.Source, &b.Size, &b.Applied, &b.Outcome, &b.Error, &b.StartedAt, &b.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *postgresRepo) ListRecent(ctx context.Context, limit int) ([]domain.ConsentBatch, error) {
	const q = `
SELECT id::text, source, size, applied, outcome, error, started_at, finished_at
FROM consent_batches
ORDER BY started_at DESC
LIMIT $1
`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ConsentBatch
	for rows.Next() {
		var b domain.ConsentBatch
		if err := rows.Scan(&b.ID, &b.Source, &b.Size, &b.Applied, &b.Outcome, &b.Error, &b.StartedAt, &b.FinishedAt); err != nil {
			r.logger.Error("consent repo: scan batch", zap.Error(err))
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *postgresRepo) ListItems(ctx context.Context, batchID string) ([]domain.ConsentBatchItem, error) {
	const q = `
SELECT batch_id::text, sequence, email, customer_id, state, applied_at
FROM consent_batch_items
WHERE batch_id = $1
ORDER BY sequence
`
	rows, err := r.pool.Query(ctx, q, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ConsentBatchItem, error) {
		var it domain.ConsentBatchItem
		var state string
		err := row.Scan(&it.BatchID, &it.Sequence, &it.Email, &it.CustomerID, &state, &it.AppliedAt)
		it.State = domain.ConsentState(state)
		return it, err
	})
	if err != nil {
		r.logger.Error("consent repo: scan items", zap.String("batch_id", batchID), zap.Error(err))
		return nil, err
	}
	return items, nil
}
