package ledger

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestFileLedgerRecord(t *testing.T) {
	dir := t.TempDir()

	l, err := NewFileLedger(dir, testLogger())
	if err != nil {
		t.Fatalf("NewFileLedger: %v", err)
	}

	failed := []models.FailedRecord{
		{ListingID: "200", Fields: map[string]interface{}{"ListingID": "200"}, Error: "boom"},
		{ListingID: "400", Fields: map[string]interface{}{"ListingID": "400"}, Error: "bad"},
	}

	if err := l.Record("domain", "run-1", failed); err != nil {
		t.Fatalf("Record: %v", err)
	}

	path := l.Path("domain", "run-1")
	if want := filepath.Join(dir, "failed-records-domain-run-1.json"); path != want {
		t.Errorf("Path = %q, want %q", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ledger file: %v", err)
	}

	var decoded []models.FailedRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode ledger file: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded %d records, want 2", len(decoded))
	}
	if decoded[0].ListingID != "200" || decoded[1].ListingID != "400" {
		t.Errorf("order = %s, %s; want 200, 400", decoded[0].ListingID, decoded[1].ListingID)
	}
	if decoded[0].Error != "boom" {
		t.Errorf("Error = %q", decoded[0].Error)
	}
}

func TestFileLedgerSkipsEmpty(t *testing.T) {
	dir := t.TempDir()

	l, err := NewFileLedger(dir, testLogger())
	if err != nil {
		t.Fatalf("NewFileLedger: %v", err)
	}

	if err := l.Record("domain", "run-1", nil); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if _, err := os.Stat(l.Path("domain", "run-1")); !os.IsNotExist(err) {
		t.Error("empty ledger should not create a file")
	}
}

func TestFileLedgerCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")

	if _, err := NewFileLedger(dir, testLogger()); err != nil {
		t.Fatalf("NewFileLedger: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Errorf("ledger directory not created: %v", err)
	}
}
