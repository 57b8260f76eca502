package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fetcharr/fetcharr/internal/search"
	"github.com/fetcharr/fetcharr/internal/show"
	"github.com/fetcharr/fetcharr/internal/tvcache"
)

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"version":   "0.1.0",
		"shows":     len(s.deps.Registry.All()),
		"providers": len(s.deps.Providers),
		"queued":    s.deps.Queue.Len(),
		"clients":   s.deps.Hub.ClientCount(),
	})
}

type showSummary struct {
	ID        int64  `json:"id"`
	IndexerID int64  `json:"indexerId"`
	Name      string `json:"name"`
	Anime     bool   `json:"anime"`
	Paused    bool   `json:"paused"`
	Episodes  int    `json:"episodes"`
}

func (s *Server) listShows(c echo.Context) error {
	shows := s.deps.Registry.All()
	out := make([]showSummary, 0, len(shows))
	for _, sh := range shows {
		out = append(out, showSummary{
			ID:        sh.ID,
			IndexerID: sh.IndexerID,
			Name:      sh.Name,
			Anime:     sh.Anime,
			Paused:    sh.Paused,
			Episodes:  len(sh.Episodes()),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getQueue(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Queue.Status())
}

type providerSummary struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Protocol     string     `json:"protocol"`
	Enabled      bool       `json:"enabled"`
	LastUpdate   *time.Time `json:"lastUpdate,omitempty"`
	LastSearch   *time.Time `json:"lastSearch,omitempty"`
	FailureCount int        `json:"failureCount"`
	FailureKind  string     `json:"failureKind,omitempty"`
	CacheRows    int64      `json:"cacheRows"`
}

func (s *Server) listProviders(c echo.Context) error {
	ctx := c.Request().Context()

	out := make([]providerSummary, 0, len(s.deps.Providers))
	for _, p := range s.deps.Providers {
		summary := providerSummary{
			ID:       p.Def.ID,
			Name:     p.Def.Name,
			Protocol: string(p.Def.Protocol),
			Enabled:  p.Def.Enabled,
		}

		if last, err := s.deps.Status.LastUpdate(ctx, p.Def.ID); err == nil && !last.IsZero() {
			summary.LastUpdate = &last
		}
		if last, err := s.deps.Status.LastSearch(ctx, p.Def.ID); err == nil && !last.IsZero() {
			summary.LastSearch = &last
		}
		if count, kind, err := s.deps.Status.Failures(ctx, p.Def.ID); err == nil {
			summary.FailureCount = count
			summary.FailureKind = string(kind)
		}
		if stats, err := p.Store.Stats(ctx); err == nil {
			summary.CacheRows = stats.Rows
		}

		out = append(out, summary)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) findProvider(id string) *search.Provider {
	for _, p := range s.deps.Providers {
		if p.Def.ID == id {
			return p
		}
	}
	return nil
}

func (s *Server) getProviderCache(c echo.Context) error {
	p := s.findProvider(c.Param("id"))
	if p == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "provider not found"})
	}

	stats, err := p.Store.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) refreshProvider(c echo.Context) error {
	p := s.findProvider(c.Param("id"))
	if p == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "provider not found"})
	}

	// Run outside the request: a slow source must not hold the connection.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := p.Updater.Refresh(ctx, true); err != nil {
			s.logger.Warn().Err(err).Str("provider", p.Def.ID).Msg("forced refresh failed")
		}
	}()

	return c.JSON(http.StatusAccepted, map[string]string{"status": "refresh started"})
}

type searchRequest struct {
	ShowID         int64 `json:"showId"`
	Season         int   `json:"season"`
	Episodes       []int `json:"episodes"`
	AllowDowngrade bool  `json:"allowDowngrade"`
}

// segment resolves the request to tracked episodes. An empty episode list
// means the whole season.
func (s *Server) segment(req searchRequest) (*show.Show, []*show.Episode) {
	sh := s.deps.Registry.FindByID(req.ShowID)
	if sh == nil {
		return nil, nil
	}

	var segment []*show.Episode
	if len(req.Episodes) == 0 {
		for _, ep := range sh.Episodes() {
			if ep.Season == req.Season {
				segment = append(segment, ep)
			}
		}
	} else {
		for _, number := range req.Episodes {
			if ep := sh.Episode(req.Season, number); ep != nil {
				segment = append(segment, ep)
			}
		}
	}
	return sh, segment
}

func (s *Server) forcedSearch(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	sh, segment := s.segment(req)
	if sh == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "show not found"})
	}
	if len(segment) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no matching episodes"})
	}

	item := &search.ForcedSearchItem{
		Searcher:       s.deps.Searcher,
		Show:           sh,
		Episodes:       segment,
		AllowDowngrade: req.AllowDowngrade,
	}
	id, err := s.deps.Queue.Push(item)
	if err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"id":       id.String(),
		"episodes": len(segment),
	})
}

// retryFailed resets the requested episodes and queues a retry at failed
// priority, ahead of scheduled backlog and daily work.
func (s *Server) retryFailed(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	sh, segment := s.segment(req)
	if sh == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "show not found"})
	}
	if len(segment) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no matching episodes"})
	}

	item := &search.FailedQueueItem{
		Searcher: s.deps.Searcher,
		Registry: s.deps.Registry,
		Show:     sh,
		Episodes: segment,
	}
	id, err := s.deps.Queue.Push(item)
	if err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"id":       id.String(),
		"episodes": len(segment),
	})
}

type manualSearchResult struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Quality  string `json:"quality"`
	Seeders  int    `json:"seeders"`
	Leechers int    `json:"leechers"`
	Size     int64  `json:"size"`
}

func (s *Server) manualSearch(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	sh, segment := s.segment(req)
	if sh == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "show not found"})
	}
	if len(segment) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no matching episodes"})
	}

	item := search.NewManualSearchItem(s.deps.Searcher, sh, segment)
	if _, err := s.deps.Queue.Push(item); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}

	select {
	case <-item.Done():
	case <-time.After(manualSearchTimeout):
		return c.JSON(http.StatusGatewayTimeout, map[string]string{"error": "search timed out"})
	case <-c.Request().Context().Done():
		return c.Request().Context().Err()
	}

	results := item.Results()
	out := make([]manualSearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, candidateSummary(r))
	}
	return c.JSON(http.StatusOK, out)
}

func candidateSummary(r *tvcache.Candidate) manualSearchResult {
	return manualSearchResult{
		Provider: r.Provider,
		Name:     r.Name,
		URL:      r.URL,
		Quality:  r.Quality.String(),
		Seeders:  r.Seeders,
		Leechers: r.Leechers,
		Size:     r.Size,
	}
}

func (s *Server) runBacklog(c echo.Context) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.deps.Backlog.Run(ctx, true); err != nil {
			s.logger.Warn().Err(err).Msg("forced backlog pass failed")
		}
	}()
	return c.JSON(http.StatusAccepted, map[string]string{"status": "backlog started"})
}

func (s *Server) getHistory(c echo.Context) error {
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := s.deps.History.Recent(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Scheduler.ListTasks())
}
