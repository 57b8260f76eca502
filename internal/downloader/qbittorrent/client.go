// Package qbittorrent implements the qBittorrent WebUI submit API.
package qbittorrent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/fetcharr/fetcharr/internal/downloader"
)

// Client submits torrents to a qBittorrent instance.
type Client struct {
	config downloader.ClientConfig
	http   *http.Client
}

var _ downloader.Client = (*Client)(nil)

// New creates a qBittorrent client.
func New(cfg downloader.ClientConfig) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: 30 * time.Second, Jar: jar},
	}
}

// Protocol returns the torrent protocol.
func (c *Client) Protocol() downloader.Protocol {
	return downloader.ProtocolTorrent
}

func (c *Client) baseURL() string {
	scheme := "http"
	if c.config.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d/api/v2", scheme, c.config.Host, c.config.Port)
}

func (c *Client) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.config.Username)
	form.Set("password", c.config.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL()+"/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", downloader.ErrNotConnected, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Ok") {
		return downloader.ErrAuthFailed
	}
	return nil
}

// Test verifies connectivity and credentials.
func (c *Client) Test(ctx context.Context) error {
	return c.login(ctx)
}

// Add submits a torrent by magnet or .torrent url.
func (c *Client) Add(ctx context.Context, torrentURL, name string) (string, error) {
	if err := c.login(ctx); err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("urls", torrentURL)
	if c.config.Category != "" {
		form.Set("category", c.config.Category)
	}
	if name != "" {
		form.Set("rename", name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL()+"/torrents/add", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", downloader.ErrNotConnected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", downloader.ErrAddFailed, resp.StatusCode)
	}

	// qBittorrent does not return the new torrent's id on add.
	return "", nil
}
