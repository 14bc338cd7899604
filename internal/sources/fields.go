package sources

import (
	"strconv"
	"strings"

	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

// metricFieldNames is the fixed translation table from upstream metric names to
// destination field names. Metrics not present here are dropped.
var metricFieldNames = map[string]string{
	"pageView":                "PageViews",
	"emailEnquiry":            "EmailEnquiries",
	"propertyDetailPhotoView": "PropertyDetailPhotoViews",
	"videoView":               "VideoViews",
	"floorplanView":           "FloorplanViews",
}

// translateMetrics copies the first period's value of every translatable metric
// series into destination field names.
func translateMetrics(perf *models.PerformanceMetrics) map[string]interface{} {
	fields := make(map[string]interface{})
	if perf == nil {
		return fields
	}

	for _, portal := range perf.Portals {
		for _, series := range portal.Metrics {
			field, ok := metricFieldNames[series.Name]
			if !ok {
				continue
			}
			fields[field] = series.FirstValue()
		}
	}

	return fields
}

// parsePrice strips everything but digits and decimal points before parsing,
// so values like "$450,000 pw" become 450000. Unparseable input maps to 0.
func parsePrice(raw string) float64 {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}

	value, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return value
}

// parseCount parses a bedroom/bathroom style count, defaulting to 0 on
// missing or unparseable input.
func parseCount(raw string) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		// Some feeds report counts as decimals ("2.0")
		if f, ferr := strconv.ParseFloat(trimmed, 64); ferr == nil {
			return int(f)
		}
		return 0
	}
	return value
}

// stringOr returns the trimmed value, or fallback when it is empty. Critical
// destination fields carry explicit sentinels instead of blanks.
func stringOr(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
