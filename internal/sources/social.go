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

// SocialClient fetches the Facebook/Instagram analytics insights feed. The feed
// carries its metric values inline, so there is no per-listing performance API;
// runs for this source use the left-outer join mode.
type SocialClient struct {
	httpClient *http.Client
	baseURL    string
	creds      CredentialProvider
	logger     *logrus.Entry
}

// NewSocialClient creates a new social analytics client
func NewSocialClient(cfg *config.SocialConfig, creds CredentialProvider, logger *logrus.Logger) *SocialClient {
	return &SocialClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		creds:   creds,
		logger:  logger.WithField("component", "social-api"),
	}
}

// socialDataPoint is one insights entry.
type socialDataPoint struct {
	InsightID string `json:"id"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	Values    []struct {
		Value   float64 `json:"value"`
		EndTime string  `json:"end_time"`
	} `json:"values"`
}

type socialInsightsResponse struct {
	Data []socialDataPoint `json:"data"`
}

// Name identifies the source in logs, progress events and run history.
func (c *SocialClient) Name() string { return "social" }

// FetchListings fetches the insights feed. Each data point becomes one record.
func (c *SocialClient) FetchListings(ctx context.Context) ([]RawListing, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credential: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me/insights", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.creds.Invalidate()
		return nil, &AuthError{StatusCode: resp.StatusCode}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &RejectedError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload socialInsightsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode insights response: %w", err)
	}

	listings := make([]RawListing, 0, len(payload.Data))
	for i := range payload.Data {
		listings = append(listings, &payload.Data[i])
	}

	c.logger.WithField("count", len(listings)).Debug("Fetched insights data points")
	return listings, nil
}

// FetchPerformance always reports no data; insight values are inline.
func (c *SocialClient) FetchPerformance(ctx context.Context, listingID string) (*models.PerformanceMetrics, error) {
	return nil, nil
}

// ID returns the reconciliation key for the data point.
func (d *socialDataPoint) ID() string {
	if id := strings.TrimSpace(d.InsightID); id != "" {
		return id
	}
	return strings.TrimSpace(d.Name)
}

// Map transforms the data point into the destination record shape.
func (d *socialDataPoint) Map(perf *models.PerformanceMetrics) *models.Record {
	id := d.ID()
	if id == "" {
		return nil
	}

	var value float64
	var date string
	if len(d.Values) > 0 {
		value = d.Values[0].Value
		date = d.Values[0].EndTime
	}

	fields := map[string]interface{}{
		"ListingID": id,
		"PageName":  stringOr(d.Title, "Unknown"),
		"Metric":    stringOr(d.Name, "unknown"),
		"Value":     value,
		"Date":      date,
	}

	return &models.Record{ListingID: id, Fields: fields}
}
