// Package snatch routes an accepted candidate to the matching download
// client and transitions its episodes to Snatched.
package snatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/downloader"
	"github.com/fetcharr/fetcharr/internal/history"
	"github.com/fetcharr/fetcharr/internal/provider/types"
	"github.com/fetcharr/fetcharr/internal/show"
	"github.com/fetcharr/fetcharr/internal/tvcache"
)

// Broadcaster pushes snatch events to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Service submits candidates to download clients and updates episode state.
type Service struct {
	clients  map[downloader.Protocol]downloader.Client
	registry *show.Registry
	history  *history.Store
	hub      Broadcaster
	logger   zerolog.Logger
}

// NewService creates a snatch service. clients may omit a protocol; snatching
// a candidate with no configured client is an item-level error.
func NewService(clients map[downloader.Protocol]downloader.Client, registry *show.Registry, historyStore *history.Store, hub Broadcaster, logger zerolog.Logger) *Service {
	return &Service{
		clients:  clients,
		registry: registry,
		history:  historyStore,
		hub:      hub,
		logger:   logger.With().Str("component", "snatch").Logger(),
	}
}

func (s *Service) clientFor(protocol types.Protocol) (downloader.Client, error) {
	var p downloader.Protocol
	switch protocol {
	case types.ProtocolTorrent:
		p = downloader.ProtocolTorrent
	case types.ProtocolUsenet:
		p = downloader.ProtocolUsenet
	default:
		return nil, fmt.Errorf("unknown protocol %q", protocol)
	}

	client, ok := s.clients[p]
	if !ok {
		return nil, fmt.Errorf("no download client configured for %s", p)
	}
	return client, nil
}

// Snatch submits the candidate and marks its episodes Snatched. The status
// transition happens only after the client accepted the download; a failed
// submit leaves episode state untouched and is recorded in history.
func (s *Service) Snatch(ctx context.Context, c *tvcache.Candidate) error {
	client, err := s.clientFor(c.Protocol)
	if err != nil {
		return err
	}

	if _, err := client.Add(ctx, c.URL, c.Name); err != nil {
		s.logger.Warn().Err(err).Str("name", c.Name).Str("provider", c.Provider).Msg("failed to send to download client")
		if herr := s.history.RecordFailure(ctx, c); herr != nil {
			s.logger.Warn().Err(herr).Msg("failed to record snatch failure")
		}
		return fmt.Errorf("failed to snatch %q: %w", c.Name, err)
	}

	for _, ep := range c.Episodes {
		ep.SetStatus(show.StatusSnatched, c.Quality)
		if err := s.registry.SaveEpisodeStatus(ctx, ep); err != nil {
			return err
		}
	}

	if err := s.history.RecordSnatch(ctx, c); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record snatch")
	}

	s.logger.Info().
		Str("name", c.Name).
		Str("provider", c.Provider).
		Str("quality", c.Quality.String()).
		Int("episodes", len(c.Episodes)).
		Msg("snatched release")

	if s.hub != nil {
		s.hub.Broadcast("episode:snatched", map[string]interface{}{
			"show":     c.Show.Name,
			"name":     c.Name,
			"provider": c.Provider,
			"quality":  c.Quality.String(),
		})
	}

	return nil
}
