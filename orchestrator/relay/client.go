// Package relay owns the outbound side of the orchestrator: lane clients,
// lane health, relay routing, and the submission fan-out that executes a
// relay plan against the configured lanes.
package relay

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "relay")

// ErrMalformedHostname is returned when a lane host cannot be parsed.
var ErrMalformedHostname = errors.New("hostname must include port, separated by one colon, like example.com:443")

// Client is a thin wrapper around the HTTP client shared by lane
// submissions and health probes.
type Client struct {
	hc      *http.Client
	baseURL *url.URL
	token   string
}

// NewClient constructs a new client with the provided options (ex WithTimeout).
// `host` is the base host + port used to construct request urls. This value
// can be a URL string, or NewClient will assume an http endpoint if just
// `host:port` is used.
func NewClient(host string, opts ...ClientOpt) (*Client, error) {
	u, err := urlForHost(host)
	if err != nil {
		return nil, err
	}
	c := &Client{
		hc:      &http.Client{},
		baseURL: u,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Token returns the bearer token used for jwt authentication.
func (c *Client) Token() string {
	return c.token
}

// BaseURL returns the base url of the client.
func (c *Client) BaseURL() *url.URL {
	return c.baseURL
}

func urlForHost(h string) (*url.URL, error) {
	// try to parse as url (being permissive)
	u, err := url.Parse(h)
	if err == nil && u.Host != "" {
		return u, nil
	}
	// try to parse as host:port
	host, port, err := net.SplitHostPort(h)
	if err != nil {
		return nil, ErrMalformedHostname
	}
	return &url.URL{Host: net.JoinHostPort(host, port), Scheme: "http"}, nil
}

// Get executes a GET against path and returns the response body on a 200.
func (c *Client) Get(ctx context.Context, path string, opts ...ReqOption) ([]byte, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for _, o := range opts {
		o(req)
	}
	r, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(r)
	if r.StatusCode != http.StatusOK {
		return nil, non200Err(r)
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.Wrap(err, "error reading http response body")
	}
	return b, nil
}

// Post executes a JSON POST against path and returns the response body on a
// 200.
func (c *Client) Post(ctx context.Context, path string, body []byte, opts ...ReqOption) ([]byte, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for _, o := range opts {
		o(req)
	}
	r, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(r)
	if r.StatusCode != http.StatusOK {
		return nil, non200Err(r)
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.Wrap(err, "error reading http response body")
	}
	return b, nil
}

func closeBody(r *http.Response) {
	if err := r.Body.Close(); err != nil {
		log.WithError(err).Debug("Could not close response body")
	}
}

func non200Err(r *http.Response) error {
	b, err := io.ReadAll(io.LimitReader(r.Body, 1024))
	if err != nil {
		return errors.Wrapf(err, "relay returned status %d, body unreadable", r.StatusCode)
	}
	return errors.Errorf("relay returned status %d: %s", r.StatusCode, string(b))
}
