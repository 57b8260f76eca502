// Package htmlscrape decodes scraped HTML result pages into RawItems.
//
// It expects the common torrent-site table layout: one row per release with a
// title link, a download/magnet link, and numeric seeders/leechers cells. The
// selectors are configurable per provider so one decoder covers most sites.
package htmlscrape

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fetcharr/fetcharr/internal/provider/types"
)

// Selectors configures how result rows are located in a provider's markup.
type Selectors struct {
	Row      string // e.g. "table.results tbody tr"
	Title    string // e.g. "td.name a"
	Download string // e.g. "td a[href^='magnet:']"
	Seeders  string // e.g. "td.seeds"
	Leechers string // e.g. "td.leeches"
	Size     string // e.g. "td.size"
}

// DefaultSelectors covers the common results-table layout.
func DefaultSelectors() Selectors {
	return Selectors{
		Row:      "table tbody tr",
		Title:    "a.detail, td a[title]",
		Download: "a[href^='magnet:'], a[href$='.torrent']",
		Seeders:  "td.seeders, td.seeds",
		Leechers: "td.leechers, td.leeches",
		Size:     "td.size",
	}
}

// Decoder is a provider.Decoder for HTML result pages.
type Decoder struct {
	selectors Selectors
}

// New creates a Decoder with the given selectors.
func New(selectors Selectors) *Decoder {
	return &Decoder{selectors: selectors}
}

// Decode extracts RawItems from an HTML page. Rows missing a title or
// download link are skipped; a page that fails to parse at all is a
// provider-level failure.
func (d *Decoder) Decode(data []byte) ([]types.RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("malformed result page: %w", err)
	}

	var items []types.RawItem
	doc.Find(d.selectors.Row).Each(func(_ int, row *goquery.Selection) {
		title := strings.TrimSpace(row.Find(d.selectors.Title).First().Text())
		href, _ := row.Find(d.selectors.Download).First().Attr("href")
		if title == "" || href == "" {
			return
		}

		item := types.NewRawItem(title, href)
		if v, ok := cellInt(row, d.selectors.Seeders); ok {
			item.Seeders = v
		}
		if v, ok := cellInt(row, d.selectors.Leechers); ok {
			item.Leechers = v
		}
		if text := strings.TrimSpace(row.Find(d.selectors.Size).First().Text()); text != "" {
			if size, ok := parseSize(text); ok {
				item.Size = size
			}
		}
		if strings.HasPrefix(href, "magnet:") {
			item.Hash = magnetHash(href)
		}

		items = append(items, item)
	})

	return items, nil
}

func cellInt(row *goquery.Selection, selector string) (int, bool) {
	text := strings.TrimSpace(row.Find(selector).First().Text())
	text = strings.ReplaceAll(text, ",", "")
	if text == "" {
		return 0, false
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return v, true
}

var sizeUnits = map[string]int64{
	"B":   1,
	"KB":  1 << 10,
	"KIB": 1 << 10,
	"MB":  1 << 20,
	"MIB": 1 << 20,
	"GB":  1 << 30,
	"GIB": 1 << 30,
	"TB":  1 << 40,
	"TIB": 1 << 40,
}

func parseSize(text string) (int64, bool) {
	fields := strings.Fields(strings.ReplaceAll(text, ",", ""))
	if len(fields) != 2 {
		return 0, false
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	unit, ok := sizeUnits[strings.ToUpper(fields[1])]
	if !ok {
		return 0, false
	}
	return int64(value * float64(unit)), true
}

func magnetHash(magnet string) string {
	const marker = "btih:"
	idx := strings.Index(magnet, marker)
	if idx < 0 {
		return ""
	}
	hash := magnet[idx+len(marker):]
	if amp := strings.IndexByte(hash, '&'); amp >= 0 {
		hash = hash[:amp]
	}
	return strings.ToLower(hash)
}
