// Package downloader defines the download-client contract and shared types.
// Clients are thin submit wrappers: retry of a failed download is a
// higher-level failed-search concern, not a network retry here.
package downloader

import (
	"context"
	"errors"
)

// Common errors for download clients.
var (
	ErrNotConnected = errors.New("client not connected")
	ErrAuthFailed   = errors.New("authentication failed")
	ErrAddFailed    = errors.New("failed to add download")
)

// Protocol represents the download protocol a client accepts.
type Protocol string

const (
	ProtocolTorrent Protocol = "torrent"
	ProtocolUsenet  Protocol = "usenet"
)

// ClientConfig holds common configuration for download clients.
type ClientConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseSSL   bool
	APIKey   string // for clients that use API keys (SABnzbd)
	Category string // default category/label for downloads
}

// Client is the submit surface every download client implements.
type Client interface {
	Protocol() Protocol
	Test(ctx context.Context) error
	// Add submits a download by URL (nzb link, .torrent link or magnet) and
	// returns the client-side id when available.
	Add(ctx context.Context, url, name string) (string, error)
}
