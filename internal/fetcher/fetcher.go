// Package fetcher downloads retailer search result pages.
package fetcher

import "context"

// Fetcher retrieves the body of a search result page.
type Fetcher interface {
	// Fetch downloads url and returns the full response body.
	Fetch(ctx context.Context, url string) ([]byte, error)
}
