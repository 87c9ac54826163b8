package consent

import (
	"context"
	"errors"
	"time"

	"consent-bridge/internal/domain"
	"consent-bridge/internal/logger"
	consentrepo "consent-bridge/internal/repository/consent"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SuccessMessage is reported once every instruction of a batch was applied.
const SuccessMessage = "Marketing consent updated successfully for all provided customers."

const msgBatchFailed = "Failed to update marketing consent."

// ErrAuditDisabled is returned by RecentBatches when no audit store is configured.
var ErrAuditDisabled = errors.New("consent audit store is not configured")

// Resolver maps an email to the upstream customer id.
type Resolver interface {
	ResolveByEmail(ctx context.Context, email string) (int64, error)
}

// Updater applies a consent state to one customer.
type Updater interface {
	UpdateConsent(ctx context.Context, customerID int64, subscribe bool) (*domain.Customer, error)
}

// Metrics is notified about applied updates and finished batches.
type Metrics interface {
	BatchFinished(outcome string)
	ConsentUpdated(state domain.ConsentState)
}

// Options tunes batch processing.
type Options struct {
	// Prevalidate checks every entry before the first upstream call, so a
	// malformed entry late in the batch no longer leaves earlier ones applied.
	Prevalidate bool
}

// Result describes a fully applied batch.
type Result struct {
	BatchID string `json:"batchId"`
	Applied int    `json:"applied"`
	Message string `json:"message"`
}

// Service processes consent batches one instruction at a time, in order.
//
// Application upstream is incremental: when an instruction fails, the ones
// before it stay applied and nothing is rolled back. The audit store records
// exactly which instructions went through.
type Service struct {
	resolver Resolver
	updater  Updater
	audit    consentrepo.Repository
	metrics  Metrics
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Service. audit and metrics may be nil.
func New(resolver Resolver, updater Updater, audit consentrepo.Repository, metrics Metrics, opts Options, l *zap.Logger) *Service {
	return &Service{
		resolver: resolver,
		updater:  updater,
		audit:    audit,
		metrics:  metrics,
		opts:     opts,
		logger:   logger.OrNop(l).Named("consent"),
		now:      time.Now,
	}
}

// ProcessBatch decodes a request body and processes it.
func (s *Service) ProcessBatch(ctx context.Context, body []byte) (*Result, error) {
	entries, err := DecodeBatch(body)
	if err != nil {
		return nil, err
	}
	return s.Process(ctx, "http", entries)
}

// Process runs entries in order. The first invalid entry, unknown email or
// upstream failure aborts the rest of the batch.
func (s *Service) Process(ctx context.Context, source string, entries []Entry) (*Result, error) {
	run := s.begin(ctx, source, len(entries))

	if s.opts.Prevalidate {
		for i, e := range entries {
			if _, err := e.Instruction(); err != nil {
				return nil, s.abort(ctx, run, i, err)
			}
		}
	}

	for i, e := range entries {
		in, err := e.Instruction()
		if err != nil {
			return nil, s.abort(ctx, run, i, err)
		}

		customerID, err := s.resolver.ResolveByEmail(ctx, in.Email)
		if err != nil {
			return nil, s.abort(ctx, run, i, err)
		}

		updated, err := s.updater.UpdateConsent(ctx, customerID, in.Subscribe())
		if err != nil {
			return nil, s.abort(ctx, run, i, err)
		}

		state := domain.ConsentUnsubscribed
		if in.Subscribe() {
			state = domain.ConsentSubscribed
		}
		if updated != nil && updated.EmailMarketingConsent != nil && updated.EmailMarketingConsent.State != "" {
			state = updated.EmailMarketingConsent.State
		}
		s.applied(ctx, run, i, in.Email, customerID, state)
	}

	s.finish(ctx, run, domain.BatchSucceeded, "")
	s.logger.Info("consent batch applied",
		zap.String("batch_id", run.id),
		zap.Int("applied", run.applied),
	)
	return &Result{BatchID: run.id, Applied: run.applied, Message: SuccessMessage}, nil
}

// RecentBatches lists the latest audit records, newest first.
func (s *Service) RecentBatches(ctx context.Context, limit int) ([]domain.ConsentBatch, error) {
	if s.audit == nil {
		return nil, ErrAuditDisabled
	}
	batches, err := s.audit.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if batches == nil {
		batches = []domain.ConsentBatch{}
	}
	return batches, nil
}

// BatchDetail is one audit record with the items it applied, in order.
type BatchDetail struct {
	Batch domain.ConsentBatch       `json:"batch"`
	Items []domain.ConsentBatchItem `json:"items"`
}

// BatchItems returns the batch and its applied items. An id that is not a
// UUID, or that no batch carries, reports domain.ErrNotFound.
func (s *Service) BatchItems(ctx context.Context, id string) (*BatchDetail, error) {
	if s.audit == nil {
		return nil, ErrAuditDisabled
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	batch, err := s.audit.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.audit.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.ConsentBatchItem{}
	}
	return &BatchDetail{Batch: *batch, Items: items}, nil
}

type batchRun struct {
	id      string
	applied int
}

func (s *Service) begin(ctx context.Context, source string, size int) *batchRun {
	run := &batchRun{id: uuid.NewString()}
	if s.audit == nil {
		return run
	}
	err := s.audit.CreateBatch(context.WithoutCancel(ctx), domain.ConsentBatch{
		ID:        run.id,
		Source:    source,
		Size:      size,
		Outcome:   domain.BatchRunning,
		StartedAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("audit: create batch", zap.String("batch_id", run.id), zap.Error(err))
	}
	return run
}

func (s *Service) applied(ctx context.Context, run *batchRun, seq int, email string, customerID int64, state domain.ConsentState) {
	run.applied++
	if s.metrics != nil {
		s.metrics.ConsentUpdated(state)
	}
	if s.audit == nil {
		return
	}
	err := s.audit.AddItem(context.WithoutCancel(ctx), domain.ConsentBatchItem{
		BatchID:    run.id,
		Sequence:   seq,
		Email:      email,
		CustomerID: customerID,
		State:      state,
		AppliedAt:  s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("audit: add item", zap.String("batch_id", run.id), zap.Int("sequence", seq), zap.Error(err))
	}
}

func (s *Service) abort(ctx context.Context, run *batchRun, seq int, err error) error {
	err = classify(err)
	s.logger.Warn("consent batch aborted",
		zap.String("batch_id", run.id),
		zap.Int("sequence", seq),
		zap.Int("applied_before_abort", run.applied),
		zap.Error(err),
	)
	s.finish(ctx, run, domain.BatchAborted, err.Error())
	return err
}

func (s *Service) finish(ctx context.Context, run *batchRun, outcome, errMsg string) {
	if s.metrics != nil {
		s.metrics.BatchFinished(outcome)
	}
	if s.audit == nil {
		return
	}
	if err := s.audit.FinishBatch(context.WithoutCancel(ctx), run.id, outcome, run.applied, errMsg); err != nil {
		s.logger.Warn("audit: finish batch", zap.String("batch_id", run.id), zap.Error(err))
	}
}

// classify reports read-side upstream failures met mid-batch as batch update
// failures so the response carries one message for any upstream error.
func classify(err error) error {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		return domain.NewError(domain.ErrUpstreamUpdate, msgBatchFailed, err)
	}
	if errors.Is(err, domain.ErrUpstream) || errors.Is(err, domain.ErrUpstreamUpdate) {
		return domain.NewError(domain.ErrUpstreamUpdate, msgBatchFailed, derr.Cause)
	}
	return err
}
