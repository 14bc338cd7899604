package sources

import (
	"context"
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

// fakeCreds is a CredentialProvider with a fixed token and an invalidation
// counter.
type fakeCreds struct {
	token       string
	tokenErr    error
	invalidated int
}

func (f *fakeCreds) Token(ctx context.Context) (string, error) {
	return f.token, f.tokenErr
}

func (f *fakeCreds) Invalidate() { f.invalidated++ }

func newTestDomainClient(serverURL string, creds CredentialProvider) *DomainClient {
	cfg := &config.DomainConfig{
		APIBaseURL: serverURL,
		Timeout:    5 * time.Second,
	}
	return NewDomainClient(cfg, creds, testLogger())
}

func TestDomainFetchListings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/listings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"listings":[
			{"listingId":123,"uniqueID":"u-1","address":"1 Main St","price":"$450,000 pw","bedrooms":"3","bathrooms":"2","status":"current"},
			{"listingId":" 456 ","address":"","price":"","status":""}
		]}`))
	}))
	defer server.Close()

	client := newTestDomainClient(server.URL, &fakeCreds{token: "token-1"})

	listings, err := client.FetchListings(context.Background())
	if err != nil {
		t.Fatalf("FetchListings: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("got %d listings, want 2", len(listings))
	}
	if listings[0].ID() != "123" {
		t.Errorf("numeric listing ID = %q, want %q", listings[0].ID(), "123")
	}
	if listings[1].ID() != "456" {
		t.Errorf("padded listing ID = %q, want trimmed %q", listings[1].ID(), "456")
	}
}

func TestDomainErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantAuth   bool
		wantReject bool
	}{
		{"unauthorized", http.StatusUnauthorized, true, false},
		{"forbidden", http.StatusForbidden, true, false},
		{"server error", http.StatusInternalServerError, false, true},
		{"not found", http.StatusNotFound, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			creds := &fakeCreds{token: "t"}
			client := newTestDomainClient(server.URL, creds)

			_, err := client.FetchListings(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}

			var authErr *AuthError
			if errors.As(err, &authErr) != tt.wantAuth {
				t.Errorf("AuthError = %v, want %v (err: %v)", !tt.wantAuth, tt.wantAuth, err)
			}
			var rejErr *RejectedError
			if errors.As(err, &rejErr) != tt.wantReject {
				t.Errorf("RejectedError = %v, want %v (err: %v)", !tt.wantReject, tt.wantReject, err)
			}

			wantInvalidated := 0
			if tt.wantAuth {
				wantInvalidated = 1
			}
			if creds.invalidated != wantInvalidated {
				t.Errorf("invalidated %d times, want %d", creds.invalidated, wantInvalidated)
			}
		})
	}
}

func TestDomainUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused

	client := newTestDomainClient(server.URL, &fakeCreds{token: "t"})

	_, err := client.FetchListings(context.Background())
	var unavailErr *UnavailableError
	if !errors.As(err, &unavailErr) {
		t.Fatalf("got %v, want *UnavailableError", err)
	}
}

func TestDomainFetchPerformance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/listings/123/performance" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"listingId":"123","metrics":{"pageView":42,"emailEnquiry":3}}`))
	}))
	defer server.Close()

	client := newTestDomainClient(server.URL, &fakeCreds{token: "t"})

	perf, err := client.FetchPerformance(context.Background(), "123")
	if err != nil {
		t.Fatalf("FetchPerformance: %v", err)
	}
	if perf.ListingID != "123" {
		t.Errorf("ListingID = %q", perf.ListingID)
	}
	if len(perf.Portals) != 1 || perf.Portals[0].Portal != "domain" {
		t.Fatalf("portals = %+v, want single domain portal", perf.Portals)
	}
	if len(perf.Portals[0].Metrics) != 2 {
		t.Errorf("got %d metric series, want 2", len(perf.Portals[0].Metrics))
	}
}

func TestDomainListingMap(t *testing.T) {
	listing := &domainListing{
		ListingID: "123",
		UniqueID:  "u-1",
		Address:   "",
		Price:     "$450,000 pw",
		Bedrooms:  "",
		Bathrooms: "2",
		Status:    "",
	}

	perf := &models.PerformanceMetrics{
		ListingID: "123",
		Portals: []models.PortalMetrics{
			{Portal: "domain", Metrics: []models.MetricSeries{
				{Name: "pageView", Periods: []models.MetricPeriod{{Value: 42}}},
			}},
		},
	}

	record := listing.Map(perf)
	if record == nil {
		t.Fatal("Map returned nil")
	}
	if record.ListingID != "123" {
		t.Errorf("ListingID = %q", record.ListingID)
	}
	if got := record.Fields["Address"]; got != "Unknown Address" {
		t.Errorf("Address = %v, want sentinel", got)
	}
	if got := record.Fields["Status"]; got != "unknown" {
		t.Errorf("Status = %v, want sentinel", got)
	}
	if got := record.Fields["Price"]; got != 450000.0 {
		t.Errorf("Price = %v, want 450000", got)
	}
	if got := record.Fields["Bedrooms"]; got != 0 {
		t.Errorf("Bedrooms = %v, want 0 for missing value", got)
	}
	if got := record.Fields["PageViews"]; got != 42.0 {
		t.Errorf("PageViews = %v, want 42", got)
	}
}

func TestDomainListingMapRejectsMismatchedPerformance(t *testing.T) {
	listing := &domainListing{ListingID: "123"}
	perf := &models.PerformanceMetrics{ListingID: "999"}

	if record := listing.Map(perf); record != nil {
		t.Errorf("Map with mismatched performance = %+v, want nil", record)
	}
}

func TestDomainListingMapNoID(t *testing.T) {
	listing := &domainListing{ListingID: "  "}
	if record := listing.Map(nil); record != nil {
		t.Errorf("Map without ID = %+v, want nil", record)
	}
}

// Map must be a pure function of its inputs.
func TestDomainListingMapDeterministic(t *testing.T) {
	listing := &domainListing{ListingID: "123", Price: "500", Status: "current"}

	first := listing.Map(nil)
	second := listing.Map(nil)

	if len(first.Fields) != len(second.Fields) {
		t.Fatalf("field counts differ: %d vs %d", len(first.Fields), len(second.Fields))
	}
	for k, v := range first.Fields {
		if second.Fields[k] != v {
			t.Errorf("field %s differs between calls: %v vs %v", k, v, second.Fields[k])
		}
	}
}
