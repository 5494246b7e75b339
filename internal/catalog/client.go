package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/llehouerou/cadence/internal/queue"
)

// Client provides access to the catalog HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new catalog API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type trackDTO struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist,omitempty"`
	Description string  `json:"description,omitempty"`
	URL         string  `json:"url"`
	DurationSec float64 `json:"duration_seconds,omitempty"`
}

type playlistDTO struct {
	ID     string     `json:"id"`
	Tracks []trackDTO `json:"tracks"`
}

// ResolvePlayableURL fetches a fresh signed URL for a track.
func (c *Client) ResolvePlayableURL(ctx context.Context, trackID string) (string, error) {
	var dto trackDTO
	if err := c.get(ctx, "/api/v1/tracks/"+url.PathEscape(trackID), &dto); err != nil {
		return "", err
	}
	if dto.URL == "" {
		return "", fmt.Errorf("track %s: %w", trackID, ErrNotFound)
	}
	return dto.URL, nil
}

// PlaylistTracks fetches the ordered tracks of a playlist.
func (c *Client) PlaylistTracks(ctx context.Context, playlistID string) ([]queue.Track, error) {
	var dto playlistDTO
	if err := c.get(ctx, "/api/v1/playlists/"+url.PathEscape(playlistID), &dto); err != nil {
		return nil, err
	}

	tracks := make([]queue.Track, len(dto.Tracks))
	for i, t := range dto.Tracks {
		tracks[i] = queue.Track{
			ID:          t.ID,
			Title:       t.Title,
			Artist:      t.Artist,
			Description: t.Description,
			URL:         t.URL,
			Duration:    time.Duration(t.DurationSec * float64(time.Second)),
		}
	}
	return tracks, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}
