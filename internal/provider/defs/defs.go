// Package defs loads per-provider definition records from YAML files.
//
// A definition declares, as data, which optional capabilities and settings a
// provider supports. Consumers iterate the declared record instead of probing
// adapter objects at runtime.
package defs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is the capability-tagged configuration record for one provider.
type Definition struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Protocol string `yaml:"protocol"` // "torrent" or "usenet"
	Enabled  bool   `yaml:"enabled"`

	// URLs
	SiteURL   string `yaml:"site_url"`
	SearchURL string `yaml:"search_url,omitempty"`
	RSSURL    string `yaml:"rss_url,omitempty"`

	// Content scoping
	AnimeOnly    bool `yaml:"anime_only,omitempty"`
	StandardOnly bool `yaml:"standard_only,omitempty"`

	// Capabilities
	SupportsBacklog bool `yaml:"supports_backlog,omitempty"`
	NeedsLogin      bool `yaml:"needs_login,omitempty"`

	// Result format: "rss" (default) or "html".
	ResultFormat string `yaml:"result_format,omitempty"`

	// Cache refresh tuning
	MinTimeMinutes int `yaml:"min_time_minutes,omitempty"`
	MaxRecentItems int `yaml:"max_recent_items,omitempty"`
	StopAt         int `yaml:"stop_at,omitempty"`

	// Torrent-only thresholds; ignored for usenet providers.
	MinSeeders  int `yaml:"min_seeders,omitempty"`
	MinLeechers int `yaml:"min_leechers,omitempty"`

	// Credentials for login-gated sources.
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// Defaults applied to zero-valued tuning fields.
const (
	DefaultMinTimeMinutes = 10
	DefaultMaxRecentItems = 5
	DefaultStopAt         = 3
)

// Normalize fills defaulted fields in place.
func (d *Definition) Normalize() {
	if d.MinTimeMinutes <= 0 {
		d.MinTimeMinutes = DefaultMinTimeMinutes
	}
	if d.MaxRecentItems <= 0 {
		d.MaxRecentItems = DefaultMaxRecentItems
	}
	if d.StopAt <= 0 {
		d.StopAt = DefaultStopAt
	}
	if d.ResultFormat == "" {
		d.ResultFormat = "rss"
	}
}

// Validate checks required fields.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("definition missing id")
	}
	if d.Name == "" {
		return fmt.Errorf("definition %q missing name", d.ID)
	}
	if d.Protocol != "torrent" && d.Protocol != "usenet" {
		return fmt.Errorf("definition %q has invalid protocol %q", d.ID, d.Protocol)
	}
	if d.AnimeOnly && d.StandardOnly {
		return fmt.Errorf("definition %q cannot be both anime_only and standard_only", d.ID)
	}
	return nil
}

// Load parses a single definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition %s: %w", path, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse definition %s: %w", path, err)
	}

	def.Normalize()
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadDir loads every .yml/.yaml definition in dir, sorted by id.
func LoadDir(dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions dir: %w", err)
	}

	var defs []*Definition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		def, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs, nil
}
