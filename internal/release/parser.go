// Package release parses release titles into structured metadata and filters
// obviously unwanted names.
package release

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/fetcharr/fetcharr/internal/show"
)

// Parsing errors. Both are routine: a bad release name is expected input, not
// a failure of the caller.
var (
	ErrUnparsable  = errors.New("release title could not be parsed")
	ErrUnknownShow = errors.New("release does not match a tracked show")
)

// ParsedRelease is the result of parsing one release title.
type ParsedRelease struct {
	Show         *show.Show
	Season       int
	Episodes     []int
	Quality      show.Quality
	ReleaseGroup string
	// Version is the anime release revision (v2, v3...); -1 when the title
	// carries no explicit version marker.
	Version int
}

// Parser resolves a release title to a tracked show and episode metadata.
type Parser interface {
	Parse(title string) (*ParsedRelease, error)
}

// Patterns for episode numbering. Multi-episode (S01E01E02, S01E01-E02) and
// cross-format (1x02) variants are all folded into the same parse path.
var (
	seasonEpisodePattern = regexp.MustCompile(`(?i)^(.+?)[.\s_-]+s(\d{1,2})((?:[.\s_-]?e\d{1,3})+)(?:[.\s_-]+(.*))?$`)
	crossPattern         = regexp.MustCompile(`(?i)^(.+?)[.\s_-]+(\d{1,2})x(\d{1,3})(?:[.\s_-]+(.*))?$`)
	airByDatePattern     = regexp.MustCompile(`(?i)^(.+?)[.\s_-]+(\d{4})[.\s_-](\d{2})[.\s_-](\d{2})(?:[.\s_-]+(.*))?$`)
	episodeListPattern   = regexp.MustCompile(`(?i)e(\d{1,3})`)
	versionPattern       = regexp.MustCompile(`(?i)[.\s_-]v(\d)[.\s_-]`)
	groupPattern         = regexp.MustCompile(`-([A-Za-z0-9]+)$`)

	qualityPatterns = []struct {
		quality show.Quality
		pattern *regexp.Regexp
	}{
		{show.QualityUHD, regexp.MustCompile(`(?i)(2160p|4k|uhd)`)},
		{show.QualityFullHDBluRay, regexp.MustCompile(`(?i)1080p.*(blu-?ray|bdrip|remux)`)},
		{show.QualityFullHDWebDL, regexp.MustCompile(`(?i)1080p.*(web-?dl|webrip|web\b)`)},
		{show.QualityFullHDTV, regexp.MustCompile(`(?i)1080[pi]`)},
		{show.QualityHDBluRay, regexp.MustCompile(`(?i)720p.*(blu-?ray|bdrip|remux)`)},
		{show.QualityHDWebDL, regexp.MustCompile(`(?i)720p.*(web-?dl|webrip|web\b)`)},
		{show.QualityHDTV, regexp.MustCompile(`(?i)720p`)},
		{show.QualitySDDVD, regexp.MustCompile(`(?i)(dvdrip|dvd-?r|bdrip)`)},
		{show.QualitySDTV, regexp.MustCompile(`(?i)(hdtv|pdtv|sdtv|dsr|tvrip)`)},
	}
)

// NameParser is a regex-based Parser backed by the show registry.
type NameParser struct {
	registry *show.Registry
}

// NewNameParser creates a NameParser.
func NewNameParser(registry *show.Registry) *NameParser {
	return &NameParser{registry: registry}
}

// Parse parses a release title. Titles that do not carry season/episode
// numbering, or that name a show the registry does not track, return
// ErrUnparsable / ErrUnknownShow respectively.
func (p *NameParser) Parse(title string) (*ParsedRelease, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrUnparsable
	}

	name, season, episodes, rest := splitNumbering(title)
	if name == "" || len(episodes) == 0 {
		// Air-by-date releases resolve to a show but not to season
		// numbering; they are cached with season -1 and excluded from
		// need-matching.
		if m := airByDatePattern.FindStringSubmatch(title); m != nil {
			tracked := p.registry.FindByName(m[1])
			if tracked == nil {
				return nil, ErrUnknownShow
			}
			return &ParsedRelease{
				Show:    tracked,
				Season:  -1,
				Quality: ParseQuality(title),
				Version: -1,
			}, nil
		}
		return nil, ErrUnparsable
	}

	tracked := p.registry.FindByName(name)
	if tracked == nil {
		return nil, ErrUnknownShow
	}

	parsed := &ParsedRelease{
		Show:     tracked,
		Season:   season,
		Episodes: episodes,
		Quality:  ParseQuality(title),
		Version:  -1,
	}

	if m := versionPattern.FindStringSubmatch(title); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			parsed.Version = v
		}
	}
	if m := groupPattern.FindStringSubmatch(strings.TrimSpace(rest)); m != nil {
		parsed.ReleaseGroup = m[1]
	} else if m := groupPattern.FindStringSubmatch(title); m != nil {
		parsed.ReleaseGroup = m[1]
	}

	return parsed, nil
}

func splitNumbering(title string) (name string, season int, episodes []int, rest string) {
	if m := seasonEpisodePattern.FindStringSubmatch(title); m != nil {
		season, _ = strconv.Atoi(m[2])
		for _, em := range episodeListPattern.FindAllStringSubmatch(m[3], -1) {
			if ep, err := strconv.Atoi(em[1]); err == nil {
				episodes = append(episodes, ep)
			}
		}
		return m[1], season, episodes, m[4]
	}

	if m := crossPattern.FindStringSubmatch(title); m != nil {
		season, _ = strconv.Atoi(m[2])
		if ep, err := strconv.Atoi(m[3]); err == nil {
			episodes = append(episodes, ep)
		}
		return m[1], season, episodes, m[4]
	}

	return "", 0, nil, ""
}

// ParseQuality extracts the release quality from a title.
func ParseQuality(title string) show.Quality {
	for _, qp := range qualityPatterns {
		if qp.pattern.MatchString(title) {
			return qp.quality
		}
	}
	return show.QualityUnknown
}
