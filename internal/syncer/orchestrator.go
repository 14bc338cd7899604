package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/innovation-pello/pello-data-sync-dashboard/internal/sources"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

// totalSteps is the fixed number of pipeline stages reported per run.
const totalSteps = 5

// JoinMode controls how listings without performance data are handled.
type JoinMode int

const (
	// JoinRequireMatch drops listings with no matching performance entry.
	// Performance data is a required enrichment for the portal feeds.
	JoinRequireMatch JoinMode = iota
	// JoinLeftOuter keeps such listings and maps them with nil metrics.
	JoinLeftOuter
)

// FatalError aborts a run before a summary can be produced.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("sync failed during %s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Orchestrator drives one source's fetch, join, transform and push sequence,
// emitting one progress event before each stage.
type Orchestrator struct {
	adapter    sources.Adapter
	reconciler *Reconciler
	progress   ProgressSink
	logs       LogSink
	logger     *logrus.Entry
	joinMode   JoinMode
}

// NewOrchestrator creates an orchestrator for one source adapter.
func NewOrchestrator(adapter sources.Adapter, reconciler *Reconciler, progress ProgressSink, logs LogSink, joinMode JoinMode, logger *logrus.Logger) *Orchestrator {
	if progress == nil {
		progress = nopProgressSink{}
	}
	if logs == nil {
		logs = nopLogSink{}
	}

	return &Orchestrator{
		adapter:    adapter,
		reconciler: reconciler,
		progress:   progress,
		logs:       logs,
		logger:     logger.WithField("component", "orchestrator").WithField("source", adapter.Name()),
		joinMode:   joinMode,
	}
}

// Run executes one end-to-end sync. A summary is returned for completed and
// partially failed runs; fatal errors return a *FatalError and no summary.
func (o *Orchestrator) Run(ctx context.Context, runID string) (*models.SyncSummary, error) {
	source := o.adapter.Name()

	o.logger.WithField("run_id", runID).Info("Starting sync")
	emitLog(o.logs, source, "info", fmt.Sprintf("Starting %s sync...", source))

	o.step(runID, 1, "Fetching data from API...")
	listings, err := o.fetchListings(ctx)
	if err != nil {
		return nil, o.fatal(source, "fetch", err)
	}
	if len(listings) == 0 {
		return nil, o.fatal(source, "fetch", errors.New("no listing data available from API"))
	}
	emitLog(o.logs, source, "info", fmt.Sprintf("Fetched %d listings from API", len(listings)))

	o.step(runID, 2, "Fetching performance data...")
	performance := o.fetchPerformance(ctx, listings)

	o.step(runID, 3, "Transforming data...")
	records := o.transform(listings, performance)
	if len(records) == 0 {
		return nil, o.fatal(source, "transform", errors.New("no valid records to sync"))
	}
	emitLog(o.logs, source, "info", fmt.Sprintf("Transformed %d records", len(records)))

	o.step(runID, 4, "Pushing data to store...")
	summary := o.reconciler.UpsertBatch(ctx, source, runID, records)

	o.step(runID, 5, "Finalizing sync...")
	if summary.FailedCount > 0 {
		summary.Status = models.RunPartial
	} else {
		summary.Status = models.RunCompleted
	}

	o.logger.WithFields(logrus.Fields{
		"run_id":  runID,
		"status":  summary.Status,
		"success": summary.SuccessCount,
		"failed":  summary.FailedCount,
	}).Info("Sync completed")
	emitLog(o.logs, source, "info", fmt.Sprintf("%s sync completed. Success: %d, Failed: %d", source, summary.SuccessCount, summary.FailedCount))

	return summary, nil
}

// fetchListings issues the bulk listing query, retrying once when the
// credential was rejected; the adapter invalidates its cached token on the way
// out, so the retry starts from a fresh one.
func (o *Orchestrator) fetchListings(ctx context.Context) ([]sources.RawListing, error) {
	listings, err := o.adapter.FetchListings(ctx)

	var authErr *sources.AuthError
	if errors.As(err, &authErr) {
		o.logger.WithField("status", authErr.StatusCode).Warn("Credential rejected, retrying with fresh token")
		emitLog(o.logs, o.adapter.Name(), "warn", "Credential rejected, retrying with a fresh token")
		listings, err = o.adapter.FetchListings(ctx)
	}

	return listings, err
}

// fetchPerformance fetches metrics per listing, in listing order. Individual
// failures are logged and swallowed; the listing simply has no entry in the
// returned map.
func (o *Orchestrator) fetchPerformance(ctx context.Context, listings []sources.RawListing) map[string]*models.PerformanceMetrics {
	source := o.adapter.Name()
	performance := make(map[string]*models.PerformanceMetrics, len(listings))

	for _, listing := range listings {
		listingID := strings.TrimSpace(listing.ID())
		if listingID == "" {
			o.logger.Warn("Listing has no usable ID, skipping performance fetch")
			emitLog(o.logs, source, "warn", "Listing ID is missing or invalid")
			continue
		}

		perf, err := o.adapter.FetchPerformance(ctx, listingID)
		if err != nil {
			o.logger.WithError(err).WithField("listing_id", listingID).Warn("Performance fetch failed")
			emitLog(o.logs, source, "error", fmt.Sprintf("Failed to fetch performance data for ListingID %s: %v", listingID, err))
			continue
		}
		if perf == nil {
			continue
		}

		performance[listingID] = perf
	}

	return performance
}

// transform joins listings against the performance map and maps each pair into
// the destination record shape, preserving listing order.
func (o *Orchestrator) transform(listings []sources.RawListing, performance map[string]*models.PerformanceMetrics) []models.Record {
	source := o.adapter.Name()
	records := make([]models.Record, 0, len(listings))

	for _, listing := range listings {
		listingID := strings.TrimSpace(listing.ID())
		if listingID == "" {
			o.logger.Warn("Skipping listing without a valid ListingID")
			emitLog(o.logs, source, "warn", "Skipping listing without a valid ListingID")
			continue
		}

		perf, matched := performance[listingID]
		if !matched && o.joinMode == JoinRequireMatch {
			o.logger.WithField("listing_id", listingID).Warn("No matching performance data, skipping")
			emitLog(o.logs, source, "warn", fmt.Sprintf("Performance data not found for ListingID: %s", listingID))
			continue
		}

		record := listing.Map(perf)
		if record == nil {
			o.logger.WithField("listing_id", listingID).Warn("Listing could not be transformed, skipping")
			emitLog(o.logs, source, "warn", fmt.Sprintf("Skipping ListingID %s due to transformation issues", listingID))
			continue
		}

		records = append(records, *record)
	}

	return records
}

// step emits the progress event for a stage before its work begins.
func (o *Orchestrator) step(runID string, step int, message string) {
	emitProgress(o.progress, models.ProgressEvent{
		Source:  o.adapter.Name(),
		RunID:   runID,
		Step:    step,
		Total:   totalSteps,
		Message: message,
	})
}

// fatal logs and wraps a run-aborting error.
func (o *Orchestrator) fatal(source, stage string, err error) error {
	o.logger.WithError(err).WithField("stage", stage).Error("Sync failed")
	emitLog(o.logs, source, "error", fmt.Sprintf("%s sync failed: %v", source, err))
	return &FatalError{Stage: stage, Err: err}
}
