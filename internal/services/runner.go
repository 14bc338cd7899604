package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/innovation-pello/pello-data-sync-dashboard/internal/cache"
	"github.com/innovation-pello/pello-data-sync-dashboard/internal/database"
	"github.com/innovation-pello/pello-data-sync-dashboard/internal/syncer"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

// ErrRunInProgress is returned when a source already has a run in flight.
var ErrRunInProgress = errors.New("sync already running for this source")

// ErrUnknownSource is returned for sources no orchestrator was registered for.
var ErrUnknownSource = errors.New("unknown source")

// Runner coordinates sync runs across sources: it serializes runs per source,
// records run history in MySQL, run metrics in InfluxDB and the latest summary
// in Redis. Runs for different sources may execute concurrently.
type Runner struct {
	orchestrators map[string]*syncer.Orchestrator
	mysql         *database.MySQLClient
	influx        *database.InfluxClient
	redis         *cache.RedisClient
	logger        *logrus.Entry

	mu      sync.Mutex
	running map[string]bool
}

// NewRunner creates a runner; influx and redis may be nil when those backends
// are not deployed.
func NewRunner(mysql *database.MySQLClient, influx *database.InfluxClient, redis *cache.RedisClient, logger *logrus.Logger) *Runner {
	return &Runner{
		orchestrators: make(map[string]*syncer.Orchestrator),
		mysql:         mysql,
		influx:        influx,
		redis:         redis,
		logger:        logger.WithField("component", "runner"),
		running:       make(map[string]bool),
	}
}

// Register adds a source's orchestrator.
func (r *Runner) Register(source string, orchestrator *syncer.Orchestrator) {
	r.orchestrators[source] = orchestrator
}

// Sources lists registered sources in stable order.
func (r *Runner) Sources() []string {
	sources := make([]string, 0, len(r.orchestrators))
	for source := range r.orchestrators {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}

// Run executes one sync for a source, blocking until it finishes. The returned
// run carries the terminal status; the summary is nil for fatal failures.
func (r *Runner) Run(ctx context.Context, source string) (*models.SyncRun, *models.SyncSummary, error) {
	orchestrator, ok := r.orchestrators[source]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}

	if err := r.acquire(source); err != nil {
		return nil, nil, err
	}
	defer r.release(source)

	run := &models.SyncRun{
		ID:        uuid.NewString(),
		Source:    source,
		Status:    models.RunSyncing,
		StartedAt: time.Now().UTC(),
	}

	if r.mysql != nil {
		if err := r.mysql.CreateSyncRun(ctx, run); err != nil {
			r.logger.WithError(err).Warn("Failed to record run start")
		}
	}

	summary, err := orchestrator.Run(ctx, run.ID)

	finished := time.Now().UTC()
	run.FinishedAt = &finished

	if err != nil {
		run.Status = models.RunFailed
		run.Error = err.Error()
	} else {
		run.Status = summary.Status
		run.SuccessCount = summary.SuccessCount
		run.FailedCount = summary.FailedCount
	}

	r.record(ctx, run, summary)

	return run, summary, err
}

// acquire marks a source as running, rejecting overlap.
func (r *Runner) acquire(source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running[source] {
		return ErrRunInProgress
	}
	r.running[source] = true
	return nil
}

func (r *Runner) release(source string) {
	r.mu.Lock()
	delete(r.running, source)
	r.mu.Unlock()
}

// IsRunning reports whether a source has a run in flight.
func (r *Runner) IsRunning(source string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[source]
}

// record persists the terminal run state to every configured backend. Failures
// here never change the run outcome.
func (r *Runner) record(ctx context.Context, run *models.SyncRun, summary *models.SyncSummary) {
	if r.mysql != nil {
		if err := r.mysql.FinishSyncRun(ctx, run.ID, run.Status, run.SuccessCount, run.FailedCount, run.Error); err != nil {
			r.logger.WithError(err).Warn("Failed to record run finish")
		}
	}

	if r.influx != nil {
		if err := r.influx.WriteRunMetrics(ctx, run); err != nil {
			r.logger.WithError(err).Warn("Failed to write run metrics")
		}
	}

	if r.redis != nil && summary != nil {
		if err := r.redis.SetLastSummary(ctx, summary); err != nil {
			r.logger.WithError(err).Warn("Failed to cache run summary")
		}
	}
}
