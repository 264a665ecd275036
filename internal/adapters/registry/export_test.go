package registry

import (
	"net/http"
	"time"
)

// NewClientWithHTTP exposes newClientWithHTTP for tests.
func NewClientWithHTTP(root, baseURL string, client *http.Client) *Client {
	return newClientWithHTTP(root, baseURL, client)
}

// SetNow replaces the clock used for cache freshness.
func (c *Client) SetNow(now func() time.Time) {
	c.now = now
}
