package provider

import (
	"testing"

	"github.com/fetcharr/fetcharr/internal/provider/types"
)

const torznabFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:torznab="http://torznab.com/schemas/2015/feed">
  <channel>
    <item>
      <title>Some.Show.S01E01.720p.HDTV-GRP</title>
      <link>http://example.org/dl/1</link>
      <pubDate>Mon, 02 Jan 2006 15:04:05 +0000</pubDate>
      <enclosure url="http://example.org/enc/1" length="1000"/>
      <attr name="seeders" value="42"/>
      <attr name="peers" value="7"/>
      <attr name="infohash" value="abc123"/>
    </item>
    <item>
      <title>Some.Show.S01E02.720p.HDTV-GRP</title>
      <enclosure url="http://example.org/enc/2" length="2048"/>
    </item>
    <item>
      <title>no download link</title>
    </item>
  </channel>
</rss>`

func TestRSSDecodeTorrent(t *testing.T) {
	d := &RSSDecoder{Protocol: types.ProtocolTorrent}

	items, err := d.Decode([]byte(torznabFeed))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("decoded %d items, want 2 (link-less item skipped)", len(items))
	}

	first := items[0]
	if first.Title != "Some.Show.S01E01.720p.HDTV-GRP" {
		t.Errorf("title = %q", first.Title)
	}
	if first.URL != "http://example.org/dl/1" {
		t.Errorf("url = %q, want the item link preferred over the enclosure", first.URL)
	}
	if first.Seeders != 42 || first.Leechers != 7 {
		t.Errorf("metrics = (%d, %d), want (42, 7)", first.Seeders, first.Leechers)
	}
	if first.Hash != "abc123" {
		t.Errorf("hash = %q", first.Hash)
	}
	if first.Size != 1000 {
		t.Errorf("size = %d, want the enclosure length", first.Size)
	}
	if first.PubDate == "" {
		t.Error("pubDate not carried through")
	}

	second := items[1]
	if second.URL != "http://example.org/enc/2" {
		t.Errorf("url = %q, want the enclosure fallback", second.URL)
	}
	if second.Seeders != -1 || second.Leechers != -1 {
		t.Errorf("metrics = (%d, %d), want absent defaults", second.Seeders, second.Leechers)
	}
}

func TestRSSDecodeUsenetIgnoresTorrentAttrs(t *testing.T) {
	d := &RSSDecoder{Protocol: types.ProtocolUsenet}

	items, err := d.Decode([]byte(torznabFeed))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if items[0].Seeders != -1 || items[0].Hash != "" {
		t.Errorf("usenet decode read torrent attributes: seeders=%d hash=%q",
			items[0].Seeders, items[0].Hash)
	}
}

func TestRSSDecodeMalformedEnvelope(t *testing.T) {
	d := &RSSDecoder{Protocol: types.ProtocolTorrent}

	if _, err := d.Decode([]byte("<rss><channel><item>")); err == nil {
		t.Error("truncated feed decoded without error")
	}
}

func TestRSSDecodeEmptyChannel(t *testing.T) {
	d := &RSSDecoder{Protocol: types.ProtocolTorrent}

	items, err := d.Decode([]byte(`<rss><channel></channel></rss>`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("decoded %d items from an empty channel", len(items))
	}
}
