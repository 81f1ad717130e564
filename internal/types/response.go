package types

import (
	"net/http"
	"time"
)

// Response represents the result of fetching a request.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Body is the raw response body bytes, undecoded.
	Body []byte

	// FetchDuration is how long the fetch took.
	FetchDuration time.Duration
}

// NewResponse creates a Response from an http.Response.
func NewResponse(httpResp *http.Response, body []byte, duration time.Duration) *Response {
	return &Response{
		StatusCode:    httpResp.StatusCode,
		Body:          body,
		FetchDuration: duration,
	}
}
