// Package osm talks to OpenStreetMap services: Nominatim for geocoding and an
// OSRM foot profile for walking routes.
package osm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is safe for concurrent use.
type Client struct {
	geocoderURL string
	routerURL   string
	userAgent   string
	language    string
	http        *http.Client
}

// Options configures a Client. Zero values fall back to the public
// OpenStreetMap endpoints.
type Options struct {
	GeocoderURL string
	RouterURL   string
	UserAgent   string
	Language    string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

const (
	defaultGeocoderURL = "https://nominatim.openstreetmap.org"
	defaultRouterURL   = "https://routing.openstreetmap.de/routed-foot"
	defaultUserAgent   = "pedestrian-tracker/1.0"
)

// NewClient returns a client for the given endpoints.
func NewClient(opts Options) *Client {
	c := &Client{
		geocoderURL: strings.TrimRight(opts.GeocoderURL, "/"),
		routerURL:   strings.TrimRight(opts.RouterURL, "/"),
		userAgent:   opts.UserAgent,
		language:    opts.Language,
		http:        opts.HTTPClient,
	}
	if c.geocoderURL == "" {
		c.geocoderURL = defaultGeocoderURL
	}
	if c.routerURL == "" {
		c.routerURL = defaultRouterURL
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		c.http = &http.Client{Timeout: timeout}
	}
	return c
}

// getJSON issues a GET and decodes a JSON body into out.
func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	// Nominatim's usage policy requires an identifying agent.
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func (c *Client) endpoint(base, path string, q url.Values) string {
	return base + path + "?" + q.Encode()
}

func urlValues(kv ...string) url.Values {
	q := make(url.Values, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	return q
}
