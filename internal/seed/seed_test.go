package seed

import (
	"context"
	"testing"
	"time"

	"consent-bridge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	batches map[string]domain.ConsentBatch
	items   map[string][]domain.ConsentBatchItem
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{batches: map[string]domain.ConsentBatch{}, items: map[string][]domain.ConsentBatchItem{}}
}

func (m *memoryRepo) CreateBatch(_ context.Context, b domain.ConsentBatch) error {
	if _, ok := m.batches[b.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.batches[b.ID] = b
	return nil
}

func (m *memoryRepo) AddItem(_ context.Context, item domain.ConsentBatchItem) error {
	m.items[item.BatchID] = append(m.items[item.BatchID], item)
	return nil
}

func (m *memoryRepo) FinishBatch(_ context.Context, id, outcome string, applied int, errMsg string) error {
	b, ok := m.batches[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.Outcome, b.Applied, b.Error = outcome, applied, errMsg
	m.batches[id] = b
	return nil
}

func (m *memoryRepo) GetBatch(_ context.Context, id string) (*domain.ConsentBatch, error) {
	b, ok := m.batches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &b, nil
}

func (m *memoryRepo) ListRecent(context.Context, int) ([]domain.ConsentBatch, error) {
	return nil, nil
}

func (m *memoryRepo) ListItems(_ context.Context, batchID string) ([]domain.ConsentBatchItem, error) {
	return m.items[batchID], nil
}

func TestApply_Idempotent(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	n, err := Apply(context.Background(), repo, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = Apply(context.Background(), repo, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, domain.BatchSucceeded, repo.batches[demoSucceededID].Outcome)
	assert.Equal(t, 2, repo.batches[demoSucceededID].Applied)
	assert.Equal(t, domain.BatchAborted, repo.batches[demoAbortedID].Outcome)
	assert.Equal(t, 1, repo.batches[demoAbortedID].Applied)
	assert.Len(t, repo.items[demoSucceededID], 2)
	assert.Equal(t, 1, repo.items[demoSucceededID][1].Sequence)
}
