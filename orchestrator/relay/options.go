package relay

import (
	"net/http"
	"time"
)

// ReqOption mutates a single outgoing request.
type ReqOption func(*http.Request)

// WithBearerToken attaches an Authorization bearer header, the scheme
// authenticated relay lanes expect.
func WithBearerToken(token string) ReqOption {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// ClientOpt is a functional option for the Client type (http.Client wrapper).
type ClientOpt func(*Client)

// WithTimeout sets the .Timeout attribute of the wrapped http.Client.
func WithTimeout(timeout time.Duration) ClientOpt {
	return func(c *Client) {
		c.hc.Timeout = timeout
	}
}

// WithCustomTransport replaces the underlying http's transport with a custom one.
func WithCustomTransport(t http.RoundTripper) ClientOpt {
	return func(c *Client) {
		c.hc.Transport = t
	}
}

// WithTokenAuthentication sets the signing secret used to mint per-request
// jwt bearer tokens for authenticated lanes.
func WithTokenAuthentication(token string) ClientOpt {
	return func(c *Client) {
		c.token = token
	}
}
