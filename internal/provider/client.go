package provider

import (
	"context"
	"fmt"

	"stockbars/internal/model"
)

// ChartAPI is the chunk-oriented query the collector needs from the
// upstream provider. from/to are inclusive YYYYMMDD dates. The provider may
// return fewer or coarser bars than requested without signaling an error;
// callers own that detection.
type ChartAPI interface {
	RequestChunk(ctx context.Context, code string, from, to int) (model.Bars, error)
}

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider api error %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
