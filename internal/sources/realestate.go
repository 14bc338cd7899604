package sources

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/config"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

// RealestateClient fetches the realestate.com.au property feed (XML) and the
// per-listing performance API (JSON).
type RealestateClient struct {
	httpClient     *http.Client
	listingsURL    string
	performanceURL string
	creds          CredentialProvider
	logger         *logrus.Entry
}

// NewRealestateClient creates a new Realestate API client
func NewRealestateClient(cfg *config.RealestateConfig, creds CredentialProvider, logger *logrus.Logger) *RealestateClient {
	return &RealestateClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		listingsURL:    cfg.ListingsURL,
		performanceURL: cfg.PerformanceURL,
		creds:          creds,
		logger:         logger.WithField("component", "realestate-api"),
	}
}

// realestateProperty is one residential listing in the XML property feed.
type realestateProperty struct {
	Status            string `xml:"status,attr"`
	ListingID         string `xml:"listingId"`
	UniqueID          string `xml:"uniqueID"`
	AgentID           string `xml:"agentID"`
	Municipality      string `xml:"municipality"`
	Description       string `xml:"description"`
	Price             struct {
		Display string `xml:"display,attr"`
		Value   string `xml:",chardata"`
	} `xml:"price"`
	UnderOffer struct {
		Value string `xml:"value,attr"`
	} `xml:"underOffer"`
	IsHomeLandPackage struct {
		Value string `xml:"value,attr"`
	} `xml:"isHomeLandPackage"`
	Address struct {
		StreetNumber string `xml:"streetNumber"`
		Street       string `xml:"street"`
		Suburb       string `xml:"suburb"`
		State        string `xml:"state"`
		Postcode     string `xml:"postcode"`
	} `xml:"address"`
	Features struct {
		Bedrooms  string `xml:"bedrooms"`
		Bathrooms string `xml:"bathrooms"`
		Carports  string `xml:"carports"`
	} `xml:"features"`
	Objects struct {
		Images []struct {
			URL string `xml:"url,attr"`
		} `xml:"img"`
	} `xml:"objects"`
}

type realestatePropertyList struct {
	XMLName     xml.Name             `xml:"propertyList"`
	Residential []realestateProperty `xml:"residential"`
}

// realestatePerformanceResponse is the per-listing performance payload.
type realestatePerformanceResponse struct {
	Listing struct {
		ID flexString `json:"id"`
	} `json:"listing"`
	PortalMetrics []struct {
		Portal string `json:"portal"`
		All    []struct {
			MetricPeriods []struct {
				Interval     string `json:"interval"`
				MetricValues []struct {
					Name  string  `json:"name"`
					Value float64 `json:"value"`
				} `json:"metricValues"`
			} `json:"metricPeriods"`
		} `json:"all"`
	} `json:"portalMetrics"`
}

// Name identifies the source in logs, progress events and run history.
func (c *RealestateClient) Name() string { return "realestate" }

// FetchListings fetches and parses the XML property feed. It does not retry.
func (c *RealestateClient) FetchListings(ctx context.Context) ([]RawListing, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credential: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.listingsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/xml")

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

	var payload realestatePropertyList
	if err := xml.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse property feed XML: %w", err)
	}

	listings := make([]RawListing, 0, len(payload.Residential))
	for i := range payload.Residential {
		listings = append(listings, &payload.Residential[i])
	}

	c.logger.WithField("count", len(listings)).Debug("Fetched Realestate properties")
	return listings, nil
}

// FetchPerformance fetches performance metrics for a single listing.
func (c *RealestateClient) FetchPerformance(ctx context.Context, listingID string) (*models.PerformanceMetrics, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credential: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.performanceURL+listingID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

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

	var payload realestatePerformanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode performance response: %w", err)
	}

	return normalizeRealestatePerformance(&payload), nil
}

// normalizeRealestatePerformance flattens the portal/period/value nesting into
// the canonical metric series shape. Only the first reported period of each
// metric group is kept, matching the destination schema.
func normalizeRealestatePerformance(payload *realestatePerformanceResponse) *models.PerformanceMetrics {
	perf := &models.PerformanceMetrics{
		ListingID: strings.TrimSpace(string(payload.Listing.ID)),
	}

	for _, portal := range payload.PortalMetrics {
		pm := models.PortalMetrics{Portal: portal.Portal}
		for _, group := range portal.All {
			if len(group.MetricPeriods) == 0 {
				continue
			}
			period := group.MetricPeriods[0]
			for _, mv := range period.MetricValues {
				pm.Metrics = append(pm.Metrics, models.MetricSeries{
					Name: mv.Name,
					Periods: []models.MetricPeriod{
						{Interval: period.Interval, Value: mv.Value},
					},
				})
			}
		}
		perf.Portals = append(perf.Portals, pm)
	}

	return perf
}

// ID returns the reconciliation key for the property.
func (p *realestateProperty) ID() string {
	return strings.TrimSpace(p.ListingID)
}

// Map transforms the property plus its performance payload into the destination
// record shape. It returns nil when the property has no usable identifier or
// the performance payload belongs to a different listing.
func (p *realestateProperty) Map(perf *models.PerformanceMetrics) *models.Record {
	listingID := p.ID()
	if listingID == "" {
		return nil
	}

	if perf != nil && perf.ListingID != "" && perf.ListingID != listingID {
		return nil
	}

	address := ""
	if p.Address.Street != "" || p.Address.Suburb != "" {
		address = strings.TrimSpace(fmt.Sprintf("%s %s, %s, %s %s",
			p.Address.StreetNumber,
			p.Address.Street,
			p.Address.Suburb,
			p.Address.State,
			p.Address.Postcode,
		))
	}

	images := make([]map[string]string, 0, len(p.Objects.Images))
	for _, img := range p.Objects.Images {
		if img.URL == "" {
			continue
		}
		images = append(images, map[string]string{"url": img.URL})
	}

	fields := map[string]interface{}{
		"UniqueID":          strings.TrimSpace(p.UniqueID),
		"AgentID":           strings.TrimSpace(p.AgentID),
		"ListingID":         listingID,
		"Status":            stringOr(p.Status, "unknown"),
		"UnderOffer":        stringOr(p.UnderOffer.Value, "no"),
		"IsHomeLandPackage": stringOr(p.IsHomeLandPackage.Value, "no"),
		"Municipality":      strings.TrimSpace(p.Municipality),
		"Address":           stringOr(address, "Unknown Address"),
		"Description":       strings.TrimSpace(p.Description),
		"Price Guide":       parsePrice(p.Price.Value),
		"Bedrooms":          parseCount(p.Features.Bedrooms),
		"Bathrooms":         parseCount(p.Features.Bathrooms),
		"CarSpaces":         parseCount(p.Features.Carports),
		"PropertyImages":    images,
	}

	for name, value := range translateMetrics(perf) {
		fields[name] = value
	}

	return &models.Record{ListingID: listingID, Fields: fields}
}
