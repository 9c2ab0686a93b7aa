// Package places resolves a place from a caption-derived name and address
// using the Google Places Text Search API.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StatusOK is the provider's success sentinel in SearchResponse.Status.
const StatusOK = "OK"

// ErrUpstreamUnavailable wraps every transport, HTTP or decoding failure of
// a search call.
var ErrUpstreamUnavailable = errors.New("place search unavailable")

// SearchResponse is the subset of a Text Search response the resolver
// reads.
type SearchResponse struct {
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Results      []SearchResult `json:"results"`
}

// SearchResult is one ranked candidate.
type SearchResult struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Rating           *float64 `json:"rating,omitempty"`
	UserRatingsTotal *int     `json:"user_ratings_total,omitempty"`
	Photos           []Photo  `json:"photos,omitempty"`
}

// Photo is a reference that can be turned into an image URL.
type Photo struct {
	PhotoReference string `json:"photo_reference"`
	Height         int    `json:"height"`
	Width          int    `json:"width"`
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL       string
	APIKey        string
	Language      string
	PhotoMaxWidth int
	Timeout       time.Duration
}

// Client calls the Text Search endpoint. It is safe for concurrent use.
type Client struct {
	http          *http.Client
	baseURL       string
	apiKey        string
	language      string
	photoMaxWidth int
	timeout       time.Duration
}

// NewClient returns a Client. A nil httpClient uses http.DefaultClient.
func NewClient(cfg ClientConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.Language == "" {
		cfg.Language = "ko"
	}
	if cfg.PhotoMaxWidth <= 0 {
		cfg.PhotoMaxWidth = 400
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		http:          httpClient,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		language:      cfg.Language,
		photoMaxWidth: cfg.PhotoMaxWidth,
		timeout:       cfg.Timeout,
	}
}

// TextSearch runs one free-text query. The call is bounded by the client
// timeout; a timeout is reported like any other transport failure.
func (c *Client) TextSearch(ctx context.Context, query string) (SearchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("query", query)
	q.Set("key", c.apiKey)
	q.Set("language", c.language)
	endpoint := c.baseURL + "/textsearch/json?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SearchResponse{}, fmt.Errorf("%w: provider returned %s", ErrUpstreamUnavailable, resp.Status)
	}
	var out SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return SearchResponse{}, fmt.Errorf("%w: decode response: %v", ErrUpstreamUnavailable, err)
	}
	return out, nil
}

// PhotoURL builds the fetchable image URL for a photo reference.
func (c *Client) PhotoURL(reference string) string {
	return c.baseURL + "/photo?maxwidth=" + strconv.Itoa(c.photoMaxWidth) +
		"&photo_reference=" + url.QueryEscape(reference) +
		"&key=" + url.QueryEscape(c.apiKey)
}
