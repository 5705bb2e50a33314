package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/afroash/station-monitor/internal/models"
)

// SensorDataPath is the server's query route.
const SensorDataPath = "/api/sensor-data"

// HTTPFetcher reads rows from a station server's query endpoint.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher creates a fetcher for the server at baseURL. A nil client
// uses http.DefaultClient; request deadlines come from the caller's context.
func NewHTTPFetcher(baseURL string, client *http.Client) (*HTTPFetcher, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}, nil
}

// Fetch requests up to max rows as JSON, bypassing any caches.
func (f *HTTPFetcher) Fetch(ctx context.Context, max int) ([]models.Row, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("max", strconv.Itoa(max))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+SensorDataPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var rows []models.Row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode rows: %w", err)
	}
	if rows == nil {
		return nil, fmt.Errorf("response is not a list of rows")
	}
	return rows, nil
}
