package speedtester

import "context"

// Prober performs the raw transfers a detection cycle is built from.
// Implementations must treat a non-2xx status as an error.
type Prober interface {
	// Get fetches url and returns the number of body bytes received.
	Get(ctx context.Context, url string) (int64, error)
	// Post sends body to url.
	Post(ctx context.Context, url string, body []byte) error
}
