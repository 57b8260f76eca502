// Package show holds the tracked-show registry, episode state and the
// want-policy that decides whether a candidate release is still needed.
package show

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a tracked episode.
type Status int

const (
	StatusUnaired Status = iota
	StatusWanted
	StatusSnatched
	StatusDownloaded
	StatusSkipped
	StatusIgnored
)

var statusNames = map[Status]string{
	StatusUnaired:    "Unaired",
	StatusWanted:     "Wanted",
	StatusSnatched:   "Snatched",
	StatusDownloaded: "Downloaded",
	StatusSkipped:    "Skipped",
	StatusIgnored:    "Ignored",
}

// String returns the human-readable status name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Show is a tracked series.
type Show struct {
	ID        int64
	IndexerID int64 // id in the external show registry (tvdb-style)
	Name      string
	Anime     bool
	Paused    bool
	Allowed   QualitySet
	Preferred QualitySet

	mu       sync.RWMutex
	episodes map[episodeKey]*Episode
}

type episodeKey struct {
	season  int
	episode int
}

// Episode is one tracked episode of a show. Status and Quality are mutated
// only through SetStatus, which holds the episode's own lock.
type Episode struct {
	ID      int64
	ShowID  int64
	Season  int
	Episode int
	AirDate time.Time

	mu      sync.Mutex
	status  Status
	quality Quality
}

// NewEpisode creates an episode with an initial status and quality.
func NewEpisode(id, showID int64, season, episode int, airDate time.Time, status Status, quality Quality) *Episode {
	return &Episode{
		ID:      id,
		ShowID:  showID,
		Season:  season,
		Episode: episode,
		AirDate: airDate,
		status:  status,
		quality: quality,
	}
}

// Status returns the episode's current status and quality.
func (e *Episode) Status() (Status, Quality) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, e.quality
}

// SetStatus updates the episode's status and quality under its lock.
func (e *Episode) SetStatus(status Status, quality Quality) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = status
	e.quality = quality
}

// Episode returns the tracked episode for (season, episode), or nil.
func (s *Show) Episode(season, episode int) *Episode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.episodes[episodeKey{season: season, episode: episode}]
}

// Episodes returns all tracked episodes of the show.
func (s *Show) Episodes() []*Episode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	eps := make([]*Episode, 0, len(s.episodes))
	for _, ep := range s.episodes {
		eps = append(eps, ep)
	}
	return eps
}

func (s *Show) addEpisode(ep *Episode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.episodes == nil {
		s.episodes = make(map[episodeKey]*Episode)
	}
	s.episodes[episodeKey{season: ep.Season, episode: ep.Episode}] = ep
}

// QualityAllowed reports whether q is in the show's allowed or preferred set.
func (s *Show) QualityAllowed(q Quality) bool {
	return s.Allowed.Contains(q) || s.Preferred.Contains(q)
}

// WantEpisode decides whether a release of the given quality is still wanted
// for (season, episode). This is the single home of upgrade policy: callers
// must not duplicate quality comparisons.
//
// forced relaxes status checks for user-initiated searches; allowDowngrade
// additionally accepts any allowed quality regardless of what is on disk.
func (s *Show) WantEpisode(season, episode int, q Quality, forced, allowDowngrade bool) bool {
	if !s.QualityAllowed(q) {
		return false
	}

	ep := s.Episode(season, episode)
	if ep == nil {
		return false
	}

	status, current := ep.Status()
	switch status {
	case StatusWanted:
		return true
	case StatusSnatched, StatusDownloaded:
		if forced && allowDowngrade {
			return true
		}
		if forced && q >= current {
			return true
		}
		// Automatic upgrades only move toward a preferred quality.
		return q > current && s.Preferred.Contains(q)
	default:
		return forced
	}
}
