package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/config"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

// DomainClient fetches listings and performance metrics from the Domain API.
type DomainClient struct {
	httpClient *http.Client
	baseURL    string
	creds      CredentialProvider
	logger     *logrus.Entry
}

// NewDomainClient creates a new Domain API client
func NewDomainClient(cfg *config.DomainConfig, creds CredentialProvider, logger *logrus.Logger) *DomainClient {
	return &DomainClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		creds:   creds,
		logger:  logger.WithField("component", "domain-api"),
	}
}

// flexString unmarshals both JSON strings and numbers; Domain reports listing
// identifiers as either depending on the endpoint.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(string(data), `"`)
	if trimmed == "null" {
		trimmed = ""
	}
	*f = flexString(trimmed)
	return nil
}

// domainListing is one listing in the Domain listings payload.
type domainListing struct {
	ListingID flexString `json:"listingId"`
	UniqueID  flexString `json:"uniqueID"`
	Address   string     `json:"address"`
	Price     flexString `json:"price"`
	Bedrooms  flexString `json:"bedrooms"`
	Bathrooms flexString `json:"bathrooms"`
	Status    string     `json:"status"`
}

type domainListingsResponse struct {
	Listings []domainListing `json:"listings"`
}

// domainPerformanceResponse is the per-listing performance payload.
type domainPerformanceResponse struct {
	ListingID flexString         `json:"listingId"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Name identifies the source in logs, progress events and run history.
func (c *DomainClient) Name() string { return "domain" }

// FetchListings issues the bulk listing query. It does not retry; retry policy
// for this call belongs to the orchestrator.
func (c *DomainClient) FetchListings(ctx context.Context) ([]RawListing, error) {
	var payload domainListingsResponse
	if err := c.getJSON(ctx, c.baseURL+"/listings", &payload); err != nil {
		return nil, err
	}

	listings := make([]RawListing, 0, len(payload.Listings))
	for i := range payload.Listings {
		listings = append(listings, &payload.Listings[i])
	}

	c.logger.WithField("count", len(listings)).Debug("Fetched Domain listings")
	return listings, nil
}

// FetchPerformance fetches performance metrics for a single listing.
func (c *DomainClient) FetchPerformance(ctx context.Context, listingID string) (*models.PerformanceMetrics, error) {
	var payload domainPerformanceResponse
	url := fmt.Sprintf("%s/listings/%s/performance", c.baseURL, listingID)
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}

	return normalizeDomainPerformance(&payload), nil
}

// normalizeDomainPerformance reshapes the flat Domain metrics map into the
// canonical portal/period structure used by the join stage.
func normalizeDomainPerformance(payload *domainPerformanceResponse) *models.PerformanceMetrics {
	series := make([]models.MetricSeries, 0, len(payload.Metrics))
	for name, value := range payload.Metrics {
		series = append(series, models.MetricSeries{
			Name:    name,
			Periods: []models.MetricPeriod{{Value: value}},
		})
	}

	return &models.PerformanceMetrics{
		ListingID: strings.TrimSpace(string(payload.ListingID)),
		Portals: []models.PortalMetrics{
			{Portal: "domain", Metrics: series},
		},
	}
}

// getJSON performs an authenticated GET and decodes the JSON response,
// translating transport and status failures into typed source errors.
func (c *DomainClient) getJSON(ctx context.Context, url string, out interface{}) error {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve credential: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Force a refresh so a retried call starts from a fresh token
		c.creds.Invalidate()
		return &AuthError{StatusCode: resp.StatusCode}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RejectedError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// ID returns the reconciliation key for the listing.
func (l *domainListing) ID() string {
	return strings.TrimSpace(string(l.ListingID))
}

// Map transforms the listing plus its performance payload into the destination
// record shape. It returns nil when the listing has no usable identifier or the
// performance payload belongs to a different listing.
func (l *domainListing) Map(perf *models.PerformanceMetrics) *models.Record {
	listingID := l.ID()
	if listingID == "" {
		return nil
	}

	if perf != nil && perf.ListingID != "" && perf.ListingID != listingID {
		return nil
	}

	fields := map[string]interface{}{
		"UniqueID":  strings.TrimSpace(string(l.UniqueID)),
		"ListingID": listingID,
		"Address":   stringOr(l.Address, "Unknown Address"),
		"Price":     parsePrice(string(l.Price)),
		"Bedrooms":  parseCount(string(l.Bedrooms)),
		"Bathrooms": parseCount(string(l.Bathrooms)),
		"Status":    stringOr(l.Status, "unknown"),
	}

	for name, value := range translateMetrics(perf) {
		fields[name] = value
	}

	return &models.Record{ListingID: listingID, Fields: fields}
}
