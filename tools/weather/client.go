package weather

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "weather")

const (
	// DefaultBaseURL is the National Weather Service API
	DefaultBaseURL = "https://api.weather.gov"
	// UserAgent is required by the NWS API
	UserAgent = "weather-mcp/1.0"
	// DefaultTimeout of a NWS request
	DefaultTimeout = 30 * time.Second
)

// maximum size of a NWS response
const maxResponseSize = 8 << 20

// Client is the National Weather Service API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns the client of the public NWS API.
func New() *Client {
	return &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.httpClient = client
	return c
}

// BaseURL returns the API endpoint
func (c *Client) BaseURL() string {
	return c.baseURL
}

// get fetches the GeoJSON document and decodes it into ret.
func (c *Client) get(ctx context.Context, url string, ret any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/geo+json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.WithMessagef(err, "request failed: %s", url)
	}
	defer resp.Body.Close()

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "nws_response",
		"url", url,
		"code", resp.StatusCode,
		"elapsed", time.Since(started).String(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// drain for connection reuse
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return errors.Errorf("unexpected status code %d: %s", resp.StatusCode, url)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(ret); err != nil {
		return errors.WithMessagef(err, "unable to decode response: %s", url)
	}
	return nil
}
