package fetcher

import (
	"context"
)

// PageProvider returns the raw bytes of a page.
type PageProvider interface {
	// Get performs a single fetch of rawURL. Non-2xx responses and
	// transport failures are reported as *types.FetchError.
	Get(ctx context.Context, rawURL string) ([]byte, error)

	// Close releases any resources held by the provider.
	Close() error
}

// LinkProvider renders a listing page and returns, for every element
// matching itemSelector, the href of its first anchor.
type LinkProvider interface {
	Links(ctx context.Context, rawURL, itemSelector string) ([]string, error)

	// Close releases any resources held by the provider.
	Close() error
}
