package snap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"backend-waytrack/internal/shared/geo"
)

// Client maps an ordered sequence of GPS points onto a plausible road path.
type Client interface {
	Snap(ctx context.Context, points []geo.Point) ([]geo.Point, error)
}

// Passthrough returns the input unchanged. It is selected when no snapping
// credential is configured: missing credential is a valid configuration
// state, not an error.
type Passthrough struct{}

func (Passthrough) Snap(_ context.Context, points []geo.Point) ([]geo.Point, error) {
	return points, nil
}

// HTTPClient talks to an OSRM-compatible match endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// FromConfig selects the snapping strategy once, at session configuration
// time, based on credential presence.
func FromConfig(baseURL, apiKey string) Client {
	if apiKey == "" || baseURL == "" {
		return Passthrough{}
	}
	return NewHTTPClient(baseURL, apiKey)
}

type matchResponse struct {
	Matchings []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"matchings"`
}

func (c *HTTPClient) Snap(ctx context.Context, points []geo.Point) ([]geo.Point, error) {
	if len(points) == 0 {
		return nil, nil
	}

	var coords strings.Builder
	for i, p := range points {
		if i > 0 {
			coords.WriteByte(';')
		}
		fmt.Fprintf(&coords, "%.6f,%.6f", p.Lon, p.Lat)
	}
	reqURL := fmt.Sprintf("%s/match/v1/driving/%s?overview=full&geometries=geojson&api_key=%s",
		c.baseURL, coords.String(), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snap service returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var parsed matchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("snap response decode: %w", err)
	}
	if len(parsed.Matchings) == 0 {
		return nil, fmt.Errorf("snap service returned no matchings")
	}

	var snapped []geo.Point
	for _, pair := range parsed.Matchings[0].Geometry.Coordinates {
		if len(pair) < 2 {
			continue
		}
		snapped = append(snapped, geo.Point{Lat: pair[1], Lon: pair[0]})
	}
	return snapped, nil
}
