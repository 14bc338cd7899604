package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/config"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient(serverURL string) *AirtableClient {
	cfg := &config.AirtableConfig{
		BaseURL:        serverURL,
		APIKey:         "key-1",
		BaseID:         "appBase",
		Timeout:        5 * time.Second,
		RequestsPerSec: 1000, // effectively unthrottled in tests
	}
	return NewAirtableClient(cfg, "Listings", testLogger())
}

func TestAirtableFind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("Authorization = %q", got)
		}
		formula := r.URL.Query().Get("filterByFormula")
		if formula != `{ListingID} = "123"` {
			t.Errorf("filterByFormula = %q", formula)
		}
		if got := r.URL.Query().Get("maxRecords"); got != "1" {
			t.Errorf("maxRecords = %q", got)
		}
		w.Write([]byte(`{"records":[{"id":"recABC","fields":{"ListingID":"123"}}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	handle, found, err := client.Find(context.Background(), "123")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !found {
		t.Fatal("found = false, want true")
	}
	if handle != "recABC" {
		t.Errorf("handle = %q", handle)
	}
}

func TestAirtableFindMiss(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"records":[]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, found, err := client.Find(context.Background(), "999")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found {
		t.Error("found = true, want false")
	}
}

func TestAirtableCreate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}

		var body struct {
			Records []struct {
				Fields map[string]interface{} `json:"fields"`
			} `json:"records"`
			Typecast bool `json:"typecast"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if !body.Typecast {
			t.Error("typecast = false, want true")
		}
		if len(body.Records) != 1 || body.Records[0].Fields["ListingID"] != "123" {
			t.Errorf("records = %+v", body.Records)
		}

		w.Write([]byte(`{"records":[{"id":"recNEW"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	handle, err := client.Create(context.Background(), models.Record{
		ListingID: "123",
		Fields:    map[string]interface{}{"ListingID": "123", "Price": 450000},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if handle != "recNEW" {
		t.Errorf("handle = %q", handle)
	}
}

func TestAirtableUpdate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}

		var body struct {
			Records []struct {
				ID string `json:"id"`
			} `json:"records"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(body.Records) != 1 || body.Records[0].ID != "recABC" {
			t.Errorf("records = %+v", body.Records)
		}

		w.Write([]byte(`{"records":[{"id":"recABC"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	err := client.Update(context.Background(), "recABC", models.Record{
		ListingID: "123",
		Fields:    map[string]interface{}{"Price": 460000},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestAirtableRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, _, err := client.Find(context.Background(), "123")

	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("got %v, want *RateLimitError", err)
	}
	if rateErr.RetryAfter != 12*time.Second {
		t.Errorf("RetryAfter = %v, want 12s", rateErr.RetryAfter)
	}
}

func TestAirtableRateLimitDefaultWait(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, _, err := client.Find(context.Background(), "123")

	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("got %v, want *RateLimitError", err)
	}
	if rateErr.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want default 30s", rateErr.RetryAfter)
	}
}

func TestAirtableRequestError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":{"type":"INVALID_VALUE_FOR_COLUMN"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Create(context.Background(), models.Record{ListingID: "123", Fields: map[string]interface{}{}})

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("got %v, want *RequestError", err)
	}
	if reqErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d", reqErr.StatusCode)
	}
}

func TestEscapeFormulaValue(t *testing.T) {
	if got := escapeFormulaValue(`abc"def`); got != `abc\"def` {
		t.Errorf("escapeFormulaValue = %q", got)
	}
}
