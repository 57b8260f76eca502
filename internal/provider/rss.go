package provider

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/fetcharr/fetcharr/internal/provider/types"
)

// RSSDecoder decodes RSS/torznab-style XML feeds into RawItems. Torrent feeds
// expose seeders/leechers/infohash via torznab attributes; usenet feeds carry
// size only. The protocol flag selects which attributes are read so the same
// decoder serves both.
type RSSDecoder struct {
	Protocol types.Protocol
}

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title     string       `xml:"title"`
	Link      string       `xml:"link"`
	GUID      string       `xml:"guid"`
	PubDate   string       `xml:"pubDate"`
	Size      int64        `xml:"size"`
	Enclosure rssEnclosure `xml:"enclosure"`
	Attrs     []rssAttr    `xml:"attr"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
}

type rssAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Decode parses the feed body. A non-XML envelope is a provider-level
// failure, not an item-level one.
func (d *RSSDecoder) Decode(data []byte) ([]types.RawItem, error) {
	var feed rssFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("malformed feed envelope: %w", err)
	}

	items := make([]types.RawItem, 0, len(feed.Channel.Items))
	for _, entry := range feed.Channel.Items {
		downloadURL := entry.Link
		if downloadURL == "" {
			downloadURL = entry.Enclosure.URL
		}
		if downloadURL == "" {
			continue
		}

		item := types.NewRawItem(entry.Title, downloadURL)
		item.PubDate = entry.PubDate

		if entry.Size > 0 {
			item.Size = entry.Size
		} else if entry.Enclosure.Length > 0 {
			item.Size = entry.Enclosure.Length
		}

		if d.Protocol == types.ProtocolTorrent {
			applyTorznabAttrs(&item, entry.Attrs)
		}

		items = append(items, item)
	}

	return items, nil
}

func applyTorznabAttrs(item *types.RawItem, attrs []rssAttr) {
	for _, attr := range attrs {
		switch attr.Name {
		case "seeders":
			if v, err := strconv.Atoi(attr.Value); err == nil {
				item.Seeders = v
			}
		case "peers", "leechers":
			if v, err := strconv.Atoi(attr.Value); err == nil {
				item.Leechers = v
			}
		case "size":
			if v, err := strconv.ParseInt(attr.Value, 10, 64); err == nil {
				item.Size = v
			}
		case "infohash":
			item.Hash = attr.Value
		}
	}
}
