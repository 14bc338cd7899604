package syncer

import (
	"time"

	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

// ProgressSink receives staged progress events. Delivery is best effort; the
// pipeline never fails because a sink misbehaves.
type ProgressSink interface {
	Progress(event models.ProgressEvent)
}

// LogSink receives log lines destined for dashboard listeners.
type LogSink interface {
	Log(event models.LogEvent)
}

// Ledger durably records records that failed both upsert attempts, for manual
// reprocessing. It is written at most once per run.
type Ledger interface {
	Record(source, runID string, records []models.FailedRecord) error
}

type nopProgressSink struct{}

func (nopProgressSink) Progress(models.ProgressEvent) {}

type nopLogSink struct{}

func (nopLogSink) Log(models.LogEvent) {}

type nopLedger struct{}

func (nopLedger) Record(string, string, []models.FailedRecord) error { return nil }

// emitProgress delivers an event to a sink, swallowing sink panics so a broken
// listener cannot abort a run.
func emitProgress(sink ProgressSink, event models.ProgressEvent) {
	defer func() { _ = recover() }()
	sink.Progress(event)
}

// emitLog delivers a log event to a sink, swallowing sink panics.
func emitLog(sink LogSink, source, level, message string) {
	defer func() { _ = recover() }()
	sink.Log(models.LogEvent{
		Source:    source,
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}
