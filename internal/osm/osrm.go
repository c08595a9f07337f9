package osm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/relabs-tech/pedestrian_tracker/internal/geo"
	"github.com/relabs-tech/pedestrian_tracker/internal/nav"
)

// OSRM response format
type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route asks OSRM for a walking route from → to. The path is returned in
// walking order. "No route" answers wrap nav.ErrNoRoute.
func (c *Client) Route(ctx context.Context, from, to geo.Coordinate) ([]geo.Coordinate, error) {
	// OSRM keeps "driving" in the path; the foot profile is chosen by the base URL.
	u := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson",
		c.routerURL, from.Lng, from.Lat, to.Lng, to.Lat)

	var parsed osrmResponse
	if err := c.getJSON(ctx, u, &parsed); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusBadRequest {
			return nil, fmt.Errorf("osrm route: %v: %w", se, nav.ErrNoRoute)
		}
		return nil, fmt.Errorf("osrm route: %w", err)
	}
	if parsed.Code != "" && parsed.Code != "Ok" {
		return nil, fmt.Errorf("osrm route: %s %s: %w", parsed.Code, parsed.Message, nav.ErrNoRoute)
	}
	if len(parsed.Routes) == 0 {
		return nil, fmt.Errorf("osrm route: empty response: %w", nav.ErrNoRoute)
	}

	pairs := parsed.Routes[0].Geometry.Coordinates
	coords := make([]geo.Coordinate, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) < 2 {
			continue
		}
		coords = append(coords, geo.Coordinate{Lat: pair[1], Lng: pair[0]})
	}
	if len(coords) == 0 {
		return nil, fmt.Errorf("osrm route: empty geometry: %w", nav.ErrNoRoute)
	}
	return coords, nil
}
