package geodata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"
)

// Zone is the resolved area around a coordinate plus whatever mapped
// objects Overpass knows about it. Elements stays an empty slice (not
// nil) when the upstream is unreachable.
type Zone struct {
	Lat      float64           `json:"lat"`
	Lng      float64           `json:"lng"`
	Radius   float64           `json:"radius"`
	Elements []json.RawMessage `json:"elements"`
}

// Client queries an Overpass API endpoint for mapped objects.
type Client struct {
	url        string
	httpClient *http.Client
	log        *log.Logger
}

func New(url string, timeout time.Duration, logger *log.Logger) (*Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("empty overpass url")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: logger,
	}, nil
}

// Resolve normalizes the coordinate and fetches nearby elements. An
// upstream failure is logged and yields a zone with no elements; public
// endpoints never see external service errors.
func (c *Client) Resolve(ctx context.Context, lat, lng, radius float64) Zone {
	lat = roundCoord(lat)
	lng = roundCoord(lng)
	if radius <= 0 {
		radius = 500
	}
	z := Zone{Lat: lat, Lng: lng, Radius: radius, Elements: []json.RawMessage{}}
	if c == nil {
		return z
	}

	elements, err := c.fetch(ctx, lat, lng, radius)
	if err != nil {
		if c.log != nil {
			c.log.Printf("overpass request failed: %v", err)
		}
		return z
	}
	z.Elements = elements
	return z
}

func (c *Client) fetch(ctx context.Context, lat, lng, radius float64) ([]json.RawMessage, error) {
	query := fmt.Sprintf(`[out:json][timeout:25];
(
  node(around:%.0f,%.6f,%.6f);
  way(around:%.0f,%.6f,%.6f);
  relation(around:%.0f,%.6f,%.6f);
);
out geom;`, radius, lat, lng, radius, lat, lng, radius, lat, lng)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(query))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, err
	}
	var body struct {
		Elements []json.RawMessage `json:"elements"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if body.Elements == nil {
		body.Elements = []json.RawMessage{}
	}
	return body.Elements, nil
}

func roundCoord(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
