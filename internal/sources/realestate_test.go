package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/config"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

const propertyFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<propertyList>
  <residential status="current">
    <listingId>3100</listingId>
    <uniqueID>ABC-1</uniqueID>
    <agentID>XNWXNW</agentID>
    <municipality>Sydney</municipality>
    <description>Bright two bedroom apartment.</description>
    <price display="yes">$450,000 pw</price>
    <underOffer value="no"/>
    <isHomeLandPackage value="no"/>
    <address>
      <streetNumber>12</streetNumber>
      <street>High Street</street>
      <suburb>Newtown</suburb>
      <state>NSW</state>
      <postcode>2042</postcode>
    </address>
    <features>
      <bedrooms>2</bedrooms>
      <bathrooms>1</bathrooms>
      <carports>1</carports>
    </features>
    <objects>
      <img url="https://img.example.com/1.jpg"/>
      <img url=""/>
      <img url="https://img.example.com/2.jpg"/>
    </objects>
  </residential>
  <residential status="">
    <listingId>3200</listingId>
    <features><bedrooms></bedrooms></features>
  </residential>
</propertyList>`

func newTestRealestateClient(listingsURL, performanceURL string, creds CredentialProvider) *RealestateClient {
	cfg := &config.RealestateConfig{
		ListingsURL:    listingsURL,
		PerformanceURL: performanceURL,
		Timeout:        5 * time.Second,
	}
	return NewRealestateClient(cfg, creds, testLogger())
}

func TestRealestateFetchListings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer rea-token" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(propertyFeedXML))
	}))
	defer server.Close()

	client := newTestRealestateClient(server.URL, server.URL+"/perf/", &fakeCreds{token: "rea-token"})

	listings, err := client.FetchListings(context.Background())
	if err != nil {
		t.Fatalf("FetchListings: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("got %d listings, want 2", len(listings))
	}
	if listings[0].ID() != "3100" {
		t.Errorf("ID = %q, want 3100", listings[0].ID())
	}
}

func TestRealestateFetchListingsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	creds := &fakeCreds{token: "expired"}
	client := newTestRealestateClient(server.URL, server.URL+"/perf/", creds)

	_, err := client.FetchListings(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("got %v, want *AuthError", err)
	}
	if creds.invalidated != 1 {
		t.Errorf("invalidated %d times, want 1", creds.invalidated)
	}
}

func TestRealestateFetchPerformance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/perf/3100" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"listing": {"id": 3100},
			"portalMetrics": [{
				"portal": "rea",
				"all": [{
					"metricPeriods": [
						{"interval": "P7D", "metricValues": [
							{"name": "pageView", "value": 120},
							{"name": "emailEnquiry", "value": 4}
						]},
						{"interval": "P28D", "metricValues": [{"name": "pageView", "value": 900}]}
					]
				}]
			}]
		}`))
	}))
	defer server.Close()

	client := newTestRealestateClient(server.URL, server.URL+"/perf/", &fakeCreds{token: "t"})

	perf, err := client.FetchPerformance(context.Background(), "3100")
	if err != nil {
		t.Fatalf("FetchPerformance: %v", err)
	}
	if perf.ListingID != "3100" {
		t.Errorf("ListingID = %q", perf.ListingID)
	}
	if len(perf.Portals) != 1 {
		t.Fatalf("got %d portals, want 1", len(perf.Portals))
	}

	metrics := perf.Portals[0].Metrics
	if len(metrics) != 2 {
		t.Fatalf("got %d series, want 2 (first period only)", len(metrics))
	}
	for _, series := range metrics {
		if series.Name == "pageView" && series.FirstValue() != 120 {
			t.Errorf("pageView = %v, want first period value 120", series.FirstValue())
		}
	}
}

func TestRealestatePropertyMap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(propertyFeedXML))
	}))
	defer server.Close()

	client := newTestRealestateClient(server.URL, server.URL+"/perf/", &fakeCreds{token: "t"})
	listings, err := client.FetchListings(context.Background())
	if err != nil {
		t.Fatalf("FetchListings: %v", err)
	}

	perf := &models.PerformanceMetrics{
		ListingID: "3100",
		Portals: []models.PortalMetrics{
			{Portal: "rea", Metrics: []models.MetricSeries{
				{Name: "pageView", Periods: []models.MetricPeriod{{Value: 120}}},
			}},
		},
	}

	record := listings[0].Map(perf)
	if record == nil {
		t.Fatal("Map returned nil")
	}

	if got := record.Fields["Address"]; got != "12 High Street, Newtown, NSW 2042" {
		t.Errorf("Address = %v", got)
	}
	if got := record.Fields["Status"]; got != "current" {
		t.Errorf("Status = %v", got)
	}
	if got := record.Fields["Price Guide"]; got != 450000.0 {
		t.Errorf("Price Guide = %v, want 450000", got)
	}
	if got := record.Fields["Bedrooms"]; got != 2 {
		t.Errorf("Bedrooms = %v", got)
	}
	if got := record.Fields["PageViews"]; got != 120.0 {
		t.Errorf("PageViews = %v", got)
	}

	images, ok := record.Fields["PropertyImages"].([]map[string]string)
	if !ok || len(images) != 2 {
		t.Fatalf("PropertyImages = %v, want 2 non-empty URLs", record.Fields["PropertyImages"])
	}
	if images[0]["url"] != "https://img.example.com/1.jpg" {
		t.Errorf("first image = %v", images[0])
	}

	// Second listing has no address parts and no status
	sparse := listings[1].Map(nil)
	if sparse == nil {
		t.Fatal("Map returned nil for sparse listing")
	}
	if got := sparse.Fields["Address"]; got != "Unknown Address" {
		t.Errorf("sparse Address = %v, want sentinel", got)
	}
	if got := sparse.Fields["Status"]; got != "unknown" {
		t.Errorf("sparse Status = %v, want sentinel", got)
	}
	if got := sparse.Fields["Bedrooms"]; got != 0 {
		t.Errorf("sparse Bedrooms = %v, want 0", got)
	}
}

func TestRealestatePropertyMapRejectsMismatchedPerformance(t *testing.T) {
	property := &realestateProperty{ListingID: "3100"}
	perf := &models.PerformanceMetrics{ListingID: "9999"}

	if record := property.Map(perf); record != nil {
		t.Errorf("Map with mismatched performance = %+v, want nil", record)
	}
}
