package syncer

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/innovation-pello/pello-data-sync-dashboard/internal/store"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeStore scripts per-listing failures by attempt number.
type fakeStore struct {
	existing map[string]store.RecordHandle
	// failures[listingID] is consumed one error per attempt; nil entries succeed
	failures map[string][]error
	attempts map[string]int
	calls    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		existing: make(map[string]store.RecordHandle),
		failures: make(map[string][]error),
		attempts: make(map[string]int),
	}
}

func (f *fakeStore) nextErr(listingID string) error {
	attempt := f.attempts[listingID]
	f.attempts[listingID]++

	queue := f.failures[listingID]
	if attempt < len(queue) {
		return queue[attempt]
	}
	return nil
}

func (f *fakeStore) Find(ctx context.Context, listingID string) (store.RecordHandle, bool, error) {
	f.calls = append(f.calls, "find:"+listingID)
	if err := f.nextErr(listingID); err != nil {
		return "", false, err
	}
	handle, ok := f.existing[listingID]
	return handle, ok, nil
}

func (f *fakeStore) Create(ctx context.Context, record models.Record) (store.RecordHandle, error) {
	f.calls = append(f.calls, "create:"+record.ListingID)
	handle := store.RecordHandle("rec-" + record.ListingID)
	f.existing[record.ListingID] = handle
	return handle, nil
}

func (f *fakeStore) Update(ctx context.Context, handle store.RecordHandle, record models.Record) error {
	f.calls = append(f.calls, "update:"+record.ListingID)
	return nil
}

// fakeLedger captures the single Record call per run.
type fakeLedger struct {
	source  string
	runID   string
	records []models.FailedRecord
	calls   int
}

func (f *fakeLedger) Record(source, runID string, records []models.FailedRecord) error {
	f.calls++
	f.source = source
	f.runID = runID
	f.records = records
	return nil
}

func record(listingID string) models.Record {
	return models.Record{ListingID: listingID, Fields: map[string]interface{}{"ListingID": listingID}}
}

func newTestReconciler(st store.Store, ledger Ledger) *Reconciler {
	r := NewReconciler(st, ledger, nil, time.Second, testLogger())
	r.sleep = func(ctx context.Context, d time.Duration) {}
	return r
}

func TestUpsertBatchCreateAndUpdate(t *testing.T) {
	st := newFakeStore()
	st.existing["200"] = "rec-existing"

	r := newTestReconciler(st, nil)

	summary := r.UpsertBatch(context.Background(), "domain", "run-1", []models.Record{
		record("100"),
		record("200"),
	})

	if summary.SuccessCount != 2 || summary.FailedCount != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Outcomes[0].Outcome != models.OutcomeCreated {
		t.Errorf("outcome[0] = %s, want created", summary.Outcomes[0].Outcome)
	}
	if summary.Outcomes[1].Outcome != models.OutcomeUpdated {
		t.Errorf("outcome[1] = %s, want updated", summary.Outcomes[1].Outcome)
	}
}

// A record failing its first attempt succeeds on the retry pass and counts as
// a success; a retried success never reaches the ledger.
func TestUpsertBatchRetrySucceeds(t *testing.T) {
	st := newFakeStore()
	st.failures["100"] = []error{errors.New("transient")}

	ledger := &fakeLedger{}
	r := newTestReconciler(st, ledger)

	summary := r.UpsertBatch(context.Background(), "domain", "run-1", []models.Record{
		record("100"),
		record("200"),
	})

	if summary.SuccessCount != 2 || summary.FailedCount != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.FailedRecords) != 0 {
		t.Errorf("FailedRecords = %+v, want none", summary.FailedRecords)
	}
	if ledger.calls != 0 {
		t.Errorf("ledger written %d times, want 0", ledger.calls)
	}
	if summary.Outcomes[0].Outcome != models.OutcomeCreated {
		t.Errorf("outcome[0] = %+v, want created after retry", summary.Outcomes[0])
	}
}

// One permanently failing record must not affect its neighbors, and exactly one
// ledger write captures the permanent failures in batch order.
func TestUpsertBatchPartialFailureIsolation(t *testing.T) {
	st := newFakeStore()
	st.failures["200"] = []error{errors.New("boom"), errors.New("boom again")}
	st.failures["400"] = []error{errors.New("bad"), errors.New("still bad")}

	ledger := &fakeLedger{}
	r := newTestReconciler(st, ledger)

	summary := r.UpsertBatch(context.Background(), "realestate", "run-9", []models.Record{
		record("100"),
		record("200"),
		record("300"),
		record("400"),
	})

	if summary.SuccessCount != 2 {
		t.Errorf("SuccessCount = %d, want 2", summary.SuccessCount)
	}
	if summary.FailedCount != 2 {
		t.Errorf("FailedCount = %d, want 2", summary.FailedCount)
	}

	if ledger.calls != 1 {
		t.Fatalf("ledger written %d times, want exactly 1", ledger.calls)
	}
	if ledger.source != "realestate" || ledger.runID != "run-9" {
		t.Errorf("ledger scoped to %s/%s", ledger.source, ledger.runID)
	}
	if len(ledger.records) != 2 {
		t.Fatalf("ledger records = %+v", ledger.records)
	}
	if ledger.records[0].ListingID != "200" || ledger.records[1].ListingID != "400" {
		t.Errorf("ledger order = %s, %s; want batch order 200, 400",
			ledger.records[0].ListingID, ledger.records[1].ListingID)
	}
	if ledger.records[0].Error == "" {
		t.Error("ledger record missing error detail")
	}
}

// Retries happen after the whole batch, in original order.
func TestUpsertBatchRetriesAfterBatchInOrder(t *testing.T) {
	st := newFakeStore()
	st.failures["100"] = []error{errors.New("flaky")}
	st.failures["300"] = []error{errors.New("flaky")}

	r := newTestReconciler(st, nil)

	r.UpsertBatch(context.Background(), "domain", "run-1", []models.Record{
		record("100"),
		record("200"),
		record("300"),
	})

	want := []string{
		"find:100", "find:200", "create:200", "find:300",
		"find:100", "create:100", "find:300", "create:300",
	}
	if len(st.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", st.calls, want)
	}
	for i := range want {
		if st.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", st.calls, want)
		}
	}
}

func TestUpsertBatchRateLimitPause(t *testing.T) {
	st := newFakeStore()
	st.failures["100"] = []error{&store.RateLimitError{RetryAfter: 45 * time.Second}}
	st.failures["200"] = []error{&store.RateLimitError{RetryAfter: 100 * time.Millisecond}}

	var pauses []time.Duration
	r := NewReconciler(st, nil, nil, time.Second, testLogger())
	r.sleep = func(ctx context.Context, d time.Duration) {
		pauses = append(pauses, d)
	}

	summary := r.UpsertBatch(context.Background(), "domain", "run-1", []models.Record{
		record("100"),
		record("200"),
	})

	if len(pauses) != 2 {
		t.Fatalf("pauses = %v, want 2", pauses)
	}
	if pauses[0] != 45*time.Second {
		t.Errorf("pause[0] = %v, want upstream hint 45s", pauses[0])
	}
	// Hints below the floor are raised to it
	if pauses[1] != time.Second {
		t.Errorf("pause[1] = %v, want minimum 1s", pauses[1])
	}

	// Both succeed on the retry pass
	if summary.SuccessCount != 2 || summary.FailedCount != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestUpsertBatchMissingListingID(t *testing.T) {
	st := newFakeStore()
	r := newTestReconciler(st, nil)

	summary := r.UpsertBatch(context.Background(), "domain", "run-1", []models.Record{
		{ListingID: "", Fields: map[string]interface{}{}},
	})

	if summary.FailedCount != 1 {
		t.Errorf("FailedCount = %d, want 1", summary.FailedCount)
	}
	if len(st.calls) != 0 {
		t.Errorf("store touched for invalid record: %v", st.calls)
	}
}

func TestUpsertBatchEmpty(t *testing.T) {
	r := newTestReconciler(newFakeStore(), nil)

	summary := r.UpsertBatch(context.Background(), "domain", "run-1", nil)

	if summary.SuccessCount != 0 || summary.FailedCount != 0 || len(summary.Outcomes) != 0 {
		t.Errorf("summary = %+v, want empty", summary)
	}
}
