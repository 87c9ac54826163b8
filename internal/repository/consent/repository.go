package consent

import (
	"context"

	"consent-bridge/internal/domain"
)

// Repository persists the audit trail of consent batches.
type Repository interface {
	CreateBatch(ctx context.Context, b domain.ConsentBatch) error
	AddItem(ctx context.Context, item domain.ConsentBatchItem) error
	FinishBatch(ctx context.Context, id, outcome string, applied int, errMsg string) error
	// GetBatch returns domain.ErrNotFound for an unknown id.
	GetBatch(ctx context.Context, id string) (*domain.ConsentBatch, error)
	ListRecent(ctx context.Context, limit int) ([]domain.ConsentBatch, error)
	ListItems(ctx context.Context, batchID string) ([]domain.ConsentBatchItem, error)
}
