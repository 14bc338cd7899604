package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/innovation-pello/pello-data-sync-dashboard/internal/store"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

// Reconciler upserts mapped records into the destination store with
// find-or-create semantics, partial-failure isolation, one retry pass and
// rate-limit backoff.
type Reconciler struct {
	store   store.Store
	ledger  Ledger
	logs    LogSink
	logger  *logrus.Entry
	minWait time.Duration

	// sleep is replaceable in tests
	sleep func(ctx context.Context, d time.Duration)
}

// NewReconciler creates a reconciler for one destination table.
func NewReconciler(st store.Store, ledger Ledger, logs LogSink, minWait time.Duration, logger *logrus.Logger) *Reconciler {
	if ledger == nil {
		ledger = nopLedger{}
	}
	if logs == nil {
		logs = nopLogSink{}
	}
	if minWait <= 0 {
		minWait = time.Second
	}

	return &Reconciler{
		store:   st,
		ledger:  ledger,
		logs:    logs,
		logger:  logger.WithField("component", "reconciler"),
		minWait: minWait,
		sleep:   sleepCtx,
	}
}

// failedAttempt tracks a record that failed pass one, in batch order.
type failedAttempt struct {
	index  int
	record models.Record
	err    error
}

// UpsertBatch pushes records one at a time, in order. Records that fail the
// first pass are retried exactly once, in original order, after the batch
// completes. FailedCount reflects only records that failed both attempts.
func (r *Reconciler) UpsertBatch(ctx context.Context, source, runID string, records []models.Record) *models.SyncSummary {
	summary := &models.SyncSummary{
		Source:   source,
		Outcomes: make([]models.UpsertOutcome, len(records)),
	}

	var retries []failedAttempt

	for i, record := range records {
		outcome, err := r.upsertOne(ctx, record)
		if err != nil {
			r.logger.WithError(err).WithField("listing_id", record.ListingID).Warn("Upsert failed, queued for retry")
			emitLog(r.logs, source, "warn", fmt.Sprintf("Failed to push record with ListingID %s: %v", record.ListingID, err))
			summary.Outcomes[i] = models.UpsertOutcome{ListingID: record.ListingID, Outcome: models.OutcomeFailed, Error: err.Error()}
			retries = append(retries, failedAttempt{index: i, record: record, err: err})
			r.pauseIfRateLimited(ctx, err)
			continue
		}

		summary.SuccessCount++
		summary.Outcomes[i] = models.UpsertOutcome{ListingID: record.ListingID, Outcome: outcome}
		emitLog(r.logs, source, "info", fmt.Sprintf("Successfully pushed ListingID: %s", record.ListingID))
	}

	var permanent []models.FailedRecord

	for _, attempt := range retries {
		outcome, err := r.upsertOne(ctx, attempt.record)
		if err != nil {
			r.logger.WithError(err).WithField("listing_id", attempt.record.ListingID).Error("Upsert failed on retry")
			emitLog(r.logs, source, "error", fmt.Sprintf("Record with ListingID %s failed after retry: %v", attempt.record.ListingID, err))
			summary.FailedCount++
			summary.Outcomes[attempt.index] = models.UpsertOutcome{ListingID: attempt.record.ListingID, Outcome: models.OutcomeFailed, Error: err.Error()}
			permanent = append(permanent, models.FailedRecord{
				ListingID: attempt.record.ListingID,
				Fields:    attempt.record.Fields,
				Error:     err.Error(),
			})
			r.pauseIfRateLimited(ctx, err)
			continue
		}

		summary.SuccessCount++
		summary.Outcomes[attempt.index] = models.UpsertOutcome{ListingID: attempt.record.ListingID, Outcome: outcome}
		emitLog(r.logs, source, "info", fmt.Sprintf("Successfully pushed ListingID %s on retry", attempt.record.ListingID))
	}

	summary.FailedRecords = permanent

	if len(permanent) > 0 {
		if err := r.ledger.Record(source, runID, permanent); err != nil {
			r.logger.WithError(err).Error("Failed to write failed-records ledger")
			emitLog(r.logs, source, "error", fmt.Sprintf("Failed to write failed-records ledger: %v", err))
		}
	}

	return summary
}

// upsertOne finds the record by ListingID and updates it, or creates it when
// absent. A record without a ListingID fails without touching the store.
func (r *Reconciler) upsertOne(ctx context.Context, record models.Record) (models.Outcome, error) {
	if record.ListingID == "" {
		return models.OutcomeFailed, errors.New("record has no ListingID")
	}

	handle, found, err := r.store.Find(ctx, record.ListingID)
	if err != nil {
		return models.OutcomeFailed, fmt.Errorf("find failed: %w", err)
	}

	if found {
		if err := r.store.Update(ctx, handle, record); err != nil {
			return models.OutcomeFailed, fmt.Errorf("update failed: %w", err)
		}
		return models.OutcomeUpdated, nil
	}

	if _, err := r.store.Create(ctx, record); err != nil {
		return models.OutcomeFailed, fmt.Errorf("create failed: %w", err)
	}
	return models.OutcomeCreated, nil
}

// pauseIfRateLimited honors the store's retry-after hint before continuing to
// the next record in the current pass. The pause blocks this run only.
func (r *Reconciler) pauseIfRateLimited(ctx context.Context, err error) {
	var rateErr *store.RateLimitError
	if !errors.As(err, &rateErr) {
		return
	}

	wait := rateErr.RetryAfter
	if wait < r.minWait {
		wait = r.minWait
	}

	r.logger.WithField("wait", wait.String()).Warn("Store rate limited, pausing")
	r.sleep(ctx, wait)
}

// sleepCtx sleeps for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
