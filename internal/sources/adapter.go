package sources

import (
	"context"
	"fmt"

	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

// RawListing is one listing as fetched from a portal, before mapping. Map is a
// pure function of the listing and its performance payload; it returns nil when
// the listing cannot produce a valid record.
type RawListing interface {
	ID() string
	Map(perf *models.PerformanceMetrics) *models.Record
}

// Adapter fetches raw listing collections and per-listing performance metrics
// from one external portal API.
//
// FetchListings must not retry internally; retry policy for that call belongs
// to the orchestrator. FetchPerformance failures are non-fatal to a run: the
// orchestrator logs them and continues without metrics for that listing.
type Adapter interface {
	Name() string
	FetchListings(ctx context.Context) ([]RawListing, error)
	FetchPerformance(ctx context.Context, listingID string) (*models.PerformanceMetrics, error)
}

// CredentialProvider resolves a bearer credential for portal API calls.
// Invalidate discards the cached credential so the next Token call refreshes.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// UnavailableError indicates a network-level failure with no upstream response.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("upstream unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// RejectedError indicates a non-2xx upstream response.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("upstream rejected request: status=%d body=%s", e.StatusCode, e.Body)
}

// AuthError indicates the upstream treated the credential as invalid or expired.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("credential rejected by upstream: status=%d", e.StatusCode)
}
