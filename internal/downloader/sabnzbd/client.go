// Package sabnzbd implements the SABnzbd submit API.
package sabnzbd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fetcharr/fetcharr/internal/downloader"
)

// Client submits NZBs to a SABnzbd instance.
type Client struct {
	config downloader.ClientConfig
	http   *http.Client
}

var _ downloader.Client = (*Client)(nil)

// New creates a SABnzbd client.
func New(cfg downloader.ClientConfig) *Client {
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Protocol returns the usenet protocol.
func (c *Client) Protocol() downloader.Protocol {
	return downloader.ProtocolUsenet
}

func (c *Client) baseURL() string {
	scheme := "http"
	if c.config.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d/api", scheme, c.config.Host, c.config.Port)
}

type sabResponse struct {
	Status bool     `json:"status"`
	Error  string   `json:"error"`
	NzoIDs []string `json:"nzo_ids"`
}

func (c *Client) call(ctx context.Context, params url.Values) (*sabResponse, error) {
	params.Set("apikey", c.config.APIKey)
	params.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", downloader.ErrNotConnected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, downloader.ErrAuthFailed
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed sabResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unexpected SABnzbd response: %w", err)
	}
	if !parsed.Status && parsed.Error != "" {
		return &parsed, fmt.Errorf("%w: %s", downloader.ErrAddFailed, parsed.Error)
	}
	return &parsed, nil
}

// Test verifies connectivity and the API key.
func (c *Client) Test(ctx context.Context) error {
	params := url.Values{}
	params.Set("mode", "version")
	_, err := c.call(ctx, params)
	return err
}

// Add submits an NZB url.
func (c *Client) Add(ctx context.Context, nzbURL, name string) (string, error) {
	params := url.Values{}
	params.Set("mode", "addurl")
	params.Set("name", nzbURL)
	if name != "" {
		params.Set("nzbname", name)
	}
	if c.config.Category != "" {
		params.Set("cat", c.config.Category)
	}

	resp, err := c.call(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.NzoIDs) > 0 {
		return resp.NzoIDs[0], nil
	}
	return "", nil
}
