// Package types contains shared type definitions for provider packages.
package types

// Protocol represents the download protocol a provider serves.
type Protocol string

const (
	ProtocolTorrent Protocol = "torrent"
	ProtocolUsenet  Protocol = "usenet"
)

// Search modes. RSS is the passive feed poll used by the cache updater;
// Episode and Season are targeted queries used by active search.
const (
	ModeRSS     = "RSS"
	ModeEpisode = "Episode"
	ModeSeason  = "Season"
)

// SearchStrings maps a search mode to the queries to issue for it.
type SearchStrings map[string][]string

// RawItem is the uniform record every provider adapter produces, regardless
// of the source's native shape. Optional metrics default to -1 / empty when
// the provider does not supply them.
type RawItem struct {
	Title    string
	URL      string
	Seeders  int
	Leechers int
	Size     int64
	PubDate  string
	Hash     string
}

// NewRawItem returns a RawItem with metric fields at their absent defaults.
func NewRawItem(title, url string) RawItem {
	return RawItem{
		Title:    title,
		URL:      url,
		Seeders:  -1,
		Leechers: -1,
		Size:     -1,
	}
}
