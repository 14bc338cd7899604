package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

// FileLedger persists permanently failed records as one JSON file per run,
// for manual reprocessing. Nothing consumes these files automatically.
type FileLedger struct {
	dir    string
	logger *logrus.Entry
}

// NewFileLedger creates a ledger rooted at dir, creating it if needed.
func NewFileLedger(dir string, logger *logrus.Logger) (*FileLedger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory %s: %w", dir, err)
	}

	return &FileLedger{
		dir:    dir,
		logger: logger.WithField("component", "ledger"),
	}, nil
}

// Record writes the ordered failed-record list for one run.
func (l *FileLedger) Record(source, runID string, records []models.FailedRecord) error {
	if len(records) == 0 {
		return nil
	}

	path := l.Path(source, runID)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode failed records: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write ledger file %s: %w", path, err)
	}

	l.logger.WithFields(logrus.Fields{
		"source": source,
		"run_id": runID,
		"count":  len(records),
		"path":   path,
	}).Warn("Wrote failed-records ledger")

	return nil
}

// Path returns the ledger file location for a run.
func (l *FileLedger) Path(source, runID string) string {
	return filepath.Join(l.dir, fmt.Sprintf("failed-records-%s-%s.json", source, runID))
}
