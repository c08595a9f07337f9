package osm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/relabs-tech/pedestrian_tracker/internal/geo"
	"github.com/relabs-tech/pedestrian_tracker/internal/nav"
)

// MinSuggestQuery is the shortest query Suggest sends upstream.
const MinSuggestQuery = 3

const suggestLimit = 5

type searchResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

func (r searchResult) place() (nav.Place, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return nav.Place{}, fmt.Errorf("bad lat %q: %w", r.Lat, err)
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return nav.Place{}, fmt.Errorf("bad lon %q: %w", r.Lon, err)
	}
	return nav.Place{Coord: geo.Coordinate{Lat: lat, Lng: lon}, Label: r.DisplayName}, nil
}

type address struct {
	Road        string `json:"road"`
	Pedestrian  string `json:"pedestrian"`
	Street      string `json:"street"`
	HouseNumber string `json:"house_number"`
}

type reverseResult struct {
	DisplayName string   `json:"display_name"`
	Address     *address `json:"address"`
	Error       string   `json:"error"`
}

// shortLabel prefers "road, number", then the road alone, then the first
// component of the full display name.
func (r reverseResult) shortLabel() string {
	if a := r.Address; a != nil {
		road := a.Road
		if road == "" {
			road = a.Pedestrian
		}
		if road == "" {
			road = a.Street
		}
		if road != "" && a.HouseNumber != "" {
			return road + ", " + a.HouseNumber
		}
		if road != "" {
			return road
		}
	}
	first, _, _ := strings.Cut(r.DisplayName, ",")
	return strings.TrimSpace(first)
}

func (c *Client) search(ctx context.Context, query string, limit int) ([]searchResult, error) {
	q := urlValues(
		"format", "json",
		"q", query,
		"addressdetails", "1",
		"limit", strconv.Itoa(limit),
	)
	if c.language != "" {
		q.Set("accept-language", c.language)
	}
	var results []searchResult
	if err := c.getJSON(ctx, c.endpoint(c.geocoderURL, "/search", q), &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Geocode returns the best match for query. An empty result wraps
// nav.ErrNotFound.
func (c *Client) Geocode(ctx context.Context, query string) (nav.Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nav.Place{}, fmt.Errorf("nominatim: empty query: %w", nav.ErrNotFound)
	}
	results, err := c.search(ctx, query, 1)
	if err != nil {
		return nav.Place{}, fmt.Errorf("nominatim search %q: %w", query, err)
	}
	if len(results) == 0 {
		return nav.Place{}, fmt.Errorf("nominatim search %q: %w", query, nav.ErrNotFound)
	}
	p, err := results[0].place()
	if err != nil {
		return nav.Place{}, fmt.Errorf("nominatim search %q: %w", query, err)
	}
	return p, nil
}

// Suggest returns up to five matches for autocomplete. Queries shorter than
// MinSuggestQuery return nothing without contacting the service.
func (c *Client) Suggest(ctx context.Context, query string) ([]nav.Place, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinSuggestQuery {
		return []nav.Place{}, nil
	}
	results, err := c.search(ctx, query, suggestLimit)
	if err != nil {
		return nil, fmt.Errorf("nominatim suggest %q: %w", query, err)
	}
	places := make([]nav.Place, 0, len(results))
	for _, r := range results {
		p, err := r.place()
		if err != nil {
			continue
		}
		places = append(places, p)
	}
	return places, nil
}

// ReverseGeocode returns a short street label for c.
func (c *Client) ReverseGeocode(ctx context.Context, coord geo.Coordinate) (string, error) {
	q := urlValues(
		"format", "json",
		"lat", strconv.FormatFloat(coord.Lat, 'f', -1, 64),
		"lon", strconv.FormatFloat(coord.Lng, 'f', -1, 64),
		"zoom", "18",
		"addressdetails", "1",
	)
	var r reverseResult
	if err := c.getJSON(ctx, c.endpoint(c.geocoderURL, "/reverse", q), &r); err != nil {
		return "", fmt.Errorf("nominatim reverse %s: %w", coord, err)
	}
	if r.Error != "" || r.DisplayName == "" {
		return "", fmt.Errorf("nominatim reverse %s: %w", coord, nav.ErrNotFound)
	}
	return r.shortLabel(), nil
}
