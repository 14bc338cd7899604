package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/config"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

// AirtableClient implements Store against the Airtable REST API, one table per
// source. Requests are throttled client-side to stay under Airtable's
// per-base request ceiling.
type AirtableClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	baseID     string
	table      string
	limiter    *rate.Limiter
	logger     *logrus.Entry
}

// NewAirtableClient creates an Airtable client bound to one table.
func NewAirtableClient(cfg *config.AirtableConfig, table string, logger *logrus.Logger) *AirtableClient {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5
	}

	return &AirtableClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		baseID:  cfg.BaseID,
		table:   table,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger.WithField("component", "airtable").WithField("table", table),
	}
}

type airtableRecord struct {
	ID     string                 `json:"id,omitempty"`
	Fields map[string]interface{} `json:"fields"`
}

type airtableListResponse struct {
	Records []airtableRecord `json:"records"`
}

// Find looks up a record by exact match on the ListingID field.
func (c *AirtableClient) Find(ctx context.Context, listingID string) (RecordHandle, bool, error) {
	params := url.Values{}
	params.Set("filterByFormula", fmt.Sprintf(`{ListingID} = "%s"`, escapeFormulaValue(listingID)))
	params.Set("maxRecords", "1")

	endpoint := fmt.Sprintf("%s/%s/%s?%s", c.baseURL, c.baseID, url.PathEscape(c.table), params.Encode())

	var payload airtableListResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return "", false, err
	}

	if len(payload.Records) == 0 {
		return "", false, nil
	}

	return RecordHandle(payload.Records[0].ID), true, nil
}

// Create inserts a new record and returns its handle.
func (c *AirtableClient) Create(ctx context.Context, record models.Record) (RecordHandle, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, c.baseID, url.PathEscape(c.table))

	body := map[string]interface{}{
		"records":  []airtableRecord{{Fields: record.Fields}},
		"typecast": true,
	}

	var payload airtableListResponse
	if err := c.do(ctx, http.MethodPost, endpoint, body, &payload); err != nil {
		return "", err
	}

	if len(payload.Records) == 0 {
		return "", &RequestError{StatusCode: http.StatusOK, Detail: "create returned no records"}
	}

	c.logger.WithField("listing_id", record.ListingID).Debug("Created record")
	return RecordHandle(payload.Records[0].ID), nil
}

// Update replaces the stored fields of an existing record.
func (c *AirtableClient) Update(ctx context.Context, handle RecordHandle, record models.Record) error {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, c.baseID, url.PathEscape(c.table))

	body := map[string]interface{}{
		"records":  []airtableRecord{{ID: string(handle), Fields: record.Fields}},
		"typecast": true,
	}

	if err := c.do(ctx, http.MethodPatch, endpoint, body, nil); err != nil {
		return err
	}

	c.logger.WithField("listing_id", record.ListingID).Debug("Updated record")
	return nil
}

// do executes one throttled request and translates failures into typed errors.
func (c *AirtableClient) do(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RequestError{StatusCode: resp.StatusCode, Detail: string(detail)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// parseRetryAfter reads a Retry-After seconds value, defaulting to 30s when the
// header is missing or malformed.
func parseRetryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(seconds) * time.Second
}

// escapeFormulaValue escapes quotes so listing IDs cannot break out of the
// filterByFormula string literal.
func escapeFormulaValue(value string) string {
	return strings.ReplaceAll(value, `"`, `\"`)
}
