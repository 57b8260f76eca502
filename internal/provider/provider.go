// Package provider defines the adapter contract external content sources
// implement, plus a generic HTTP-backed adapter composed from a definition
// record and a result-decoding strategy.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/provider/defs"
	"github.com/fetcharr/fetcharr/internal/provider/types"
)

// Sentinel errors for provider-level failures. ErrAuthFailed is a distinct,
// reportable category: the cache updater aborts the cycle on it without
// touching cached state.
var (
	ErrAuthFailed = errors.New("provider authentication failed")
	ErrNoData     = errors.New("provider returned no data")
)

// Adapter is the contract every content source implements. Implementations
// normalize their native response shape into uniform RawItems.
type Adapter interface {
	Definition() *defs.Definition
	Search(ctx context.Context, searchStrings types.SearchStrings) ([]types.RawItem, error)
	Login(ctx context.Context) error
}

// Decoder turns a raw provider response body into RawItems. RSS/XML feeds and
// scraped HTML pages are different decoders behind the same adapter.
type Decoder interface {
	Decode(data []byte) ([]types.RawItem, error)
}

// Generic is an HTTP-backed Adapter composed from a definition and a Decoder.
// Torrent-vs-usenet differences live in the decoder and definition record,
// not in subclasses.
type Generic struct {
	def     *defs.Definition
	client  *http.Client
	decoder Decoder
	logger  zerolog.Logger
}

// NewGeneric creates a generic adapter for a definition.
func NewGeneric(def *defs.Definition, decoder Decoder, logger zerolog.Logger) *Generic {
	return &Generic{
		def:     def,
		client:  &http.Client{Timeout: 30 * time.Second},
		decoder: decoder,
		logger:  logger.With().Str("component", "provider").Str("provider", def.ID).Logger(),
	}
}

// Definition returns the provider's definition record.
func (g *Generic) Definition() *defs.Definition {
	return g.def
}

// Login authenticates against login-gated sources. Sources without login
// requirements succeed immediately.
func (g *Generic) Login(ctx context.Context) error {
	if !g.def.NeedsLogin {
		return nil
	}
	if g.def.Username == "" && g.def.APIKey == "" {
		return fmt.Errorf("%w: no credentials configured", ErrAuthFailed)
	}

	form := url.Values{}
	if g.def.Username != "" {
		form.Set("username", g.def.Username)
		form.Set("password", g.def.Password)
	}
	if g.def.APIKey != "" {
		form.Set("apikey", g.def.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.def.SiteURL+"/login", nil)
	if err != nil {
		return err
	}
	req.URL.RawQuery = form.Encode()

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login returned status %d", resp.StatusCode)
	}
	return nil
}

// Search issues the queries in searchStrings and returns decoded items.
// RSS mode polls the feed URL once; targeted modes substitute each query
// into the search URL.
func (g *Generic) Search(ctx context.Context, searchStrings types.SearchStrings) ([]types.RawItem, error) {
	if g.def.NeedsLogin {
		if err := g.Login(ctx); err != nil {
			return nil, err
		}
	}

	var items []types.RawItem
	for mode, queries := range searchStrings {
		for _, query := range queries {
			target, err := g.searchTarget(mode, query)
			if err != nil {
				return nil, err
			}

			decoded, err := g.fetch(ctx, target)
			if err != nil {
				return nil, err
			}
			items = append(items, decoded...)
		}
	}

	if len(items) == 0 {
		return nil, ErrNoData
	}
	return items, nil
}

func (g *Generic) searchTarget(mode, query string) (string, error) {
	switch mode {
	case types.ModeRSS:
		if g.def.RSSURL == "" {
			return "", fmt.Errorf("provider %s has no RSS url", g.def.ID)
		}
		return g.def.RSSURL, nil
	default:
		if g.def.SearchURL == "" {
			return "", fmt.Errorf("provider %s has no search url", g.def.ID)
		}
		return g.def.SearchURL + url.QueryEscape(query), nil
	}
}

func (g *Generic) fetch(ctx context.Context, target string) ([]types.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	items, err := g.decoder.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	g.logger.Debug().Int("items", len(items)).Str("url", target).Msg("provider fetch decoded")
	return items, nil
}
