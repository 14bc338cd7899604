package models

// PerformanceMetrics holds engagement statistics reported for one listing,
// grouped by reporting portal and period. Adapters normalize each upstream
// payload into this shape before the join stage.
type PerformanceMetrics struct {
	ListingID string          `json:"listing_id"`
	Portals   []PortalMetrics `json:"portals"`
}

// PortalMetrics groups the metric series reported by one portal.
type PortalMetrics struct {
	Portal  string         `json:"portal"`
	Metrics []MetricSeries `json:"metrics"`
}

// MetricSeries is one named metric with its reported periods, most recent first.
type MetricSeries struct {
	Name    string         `json:"name"`
	Periods []MetricPeriod `json:"periods"`
}

// MetricPeriod is a single reporting window's value for a metric.
type MetricPeriod struct {
	Interval string  `json:"interval,omitempty"`
	Value    float64 `json:"value"`
}

// FirstValue returns the first period's value for the series, or 0 when the
// series has no periods.
func (s MetricSeries) FirstValue() float64 {
	if len(s.Periods) == 0 {
		return 0
	}
	return s.Periods[0].Value
}
