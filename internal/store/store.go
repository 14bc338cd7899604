package store

import (
	"context"
	"fmt"
	"time"

	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

// RecordHandle is the destination store's opaque identifier for one record.
type RecordHandle string

// Store is the destination the reconciler upserts into. Find matches on the
// unique ListingID field; a consistent read-after-write store keeps the
// find-then-create-or-update sequence free of duplicates.
type Store interface {
	Find(ctx context.Context, listingID string) (RecordHandle, bool, error)
	Create(ctx context.Context, record models.Record) (RecordHandle, error)
	Update(ctx context.Context, handle RecordHandle, record models.Record) error
}

// RateLimitError indicates the store throttled the request. RetryAfter carries
// the store's hint for how long to pause before the next call.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("store rate limited, retry after %s", e.RetryAfter)
}

// RequestError indicates the store rejected the request.
type RequestError struct {
	StatusCode int
	Detail     string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("store rejected request: status=%d detail=%s", e.StatusCode, e.Detail)
}
