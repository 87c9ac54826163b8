package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"consent-bridge/internal/domain"
	consentrepo "consent-bridge/internal/repository/consent"
)

type batchSeed struct {
	Batch domain.ConsentBatch
	Items []domain.ConsentBatchItem
}

// Demo batch ids are fixed so Apply can run more than once.
const (
	demoSucceededID = "00000000-0000-4000-8000-000000000001"
	demoAbortedID   = "00000000-0000-4000-8000-000000000002"
)

// Apply inserts two demo audit batches for manual testing of the batch
// listing: one fully applied and one aborted after its first item. It is
// idempotent; batches that already exist are left untouched.
func Apply(ctx context.Context, repo consentrepo.Repository, now time.Time) (int, error) {
	now = now.UTC().Truncate(time.Second)

	seeds := []batchSeed{
		{
			Batch: domain.ConsentBatch{ID: demoSucceededID, Source: "seed", Size: 2, StartedAt: now.Add(-2 * time.Hour)},
			Items: []domain.ConsentBatchItem{
				{Email: "ada@example.com", CustomerID: 1001, State: domain.ConsentSubscribed},
				{Email: "grace@example.com", CustomerID: 1002, State: domain.ConsentUnsubscribed},
			},
		},
		{
			Batch: domain.ConsentBatch{
				ID:        demoAbortedID,
				Source:    "seed",
				Size:      2,
				StartedAt: now.Add(-time.Hour),
				Error:     "No customer found with email: missing@example.com",
			},
			Items: []domain.ConsentBatchItem{
				{Email: "ada@example.com", CustomerID: 1001, State: domain.ConsentUnsubscribed},
			},
		},
	}

	inserted := 0
	for _, s := range seeds {
		ok, err := apply(ctx, repo, s)
		if err != nil {
			return inserted, fmt.Errorf("seed batch %s: %w", s.Batch.ID, err)
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

func apply(ctx context.Context, repo consentrepo.Repository, s batchSeed) (bool, error) {
	b := s.Batch
	b.Outcome = domain.BatchRunning
	if err := repo.CreateBatch(ctx, b); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return false, nil
		}
		return false, err
	}

	for i, item := range s.Items {
		item.BatchID = b.ID
		item.Sequence = i
		item.AppliedAt = b.StartedAt.Add(time.Duration(i+1) * time.Second)
		if err := repo.AddItem(ctx, item); err != nil {
			return false, fmt.Errorf("add item %d: %w", i, err)
		}
	}

	outcome := domain.BatchSucceeded
	if s.Batch.Error != "" {
		outcome = domain.BatchAborted
	}
	if err := repo.FinishBatch(ctx, b.ID, outcome, len(s.Items), s.Batch.Error); err != nil {
		return false, fmt.Errorf("finish: %w", err)
	}
	return true, nil
}
