package types

import (
	"fmt"
	"net/url"
)

// Request represents a single page fetch.
type Request struct {
	// URL is the target URL to fetch.
	URL *url.URL
}

// NewRequest creates a GET request for rawURL.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return &Request{URL: u}, nil
}

// URLString returns the string representation of the request URL.
func (r *Request) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}
