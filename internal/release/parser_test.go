package release

import (
	"context"
	"errors"
	"testing"

	"github.com/fetcharr/fetcharr/internal/show"
	"github.com/fetcharr/fetcharr/internal/testutil"
)

func newTestParser(t *testing.T, names ...string) *NameParser {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)

	registry := show.NewRegistry(tdb.Conn, tdb.Logger)
	for i, name := range names {
		sh := &show.Show{IndexerID: int64(100 + i), Name: name}
		if err := registry.AddShow(context.Background(), sh); err != nil {
			t.Fatalf("AddShow: %v", err)
		}
	}
	return NewNameParser(registry)
}

func TestParseStandardNumbering(t *testing.T) {
	p := newTestParser(t, "Some Show")

	cases := []struct {
		title    string
		season   int
		episodes []int
		quality  show.Quality
		group    string
		version  int
	}{
		{"Some.Show.S01E02.720p.HDTV.x264-GRP", 1, []int{2}, show.QualityHDTV, "GRP", -1},
		{"Some Show S02E01 1080p WEB-DL DD5.1 H.264-NTb", 2, []int{1}, show.QualityFullHDWebDL, "NTb", -1},
		{"Some.Show.S01E01E02.720p.BluRay-GRP", 1, []int{1, 2}, show.QualityHDBluRay, "GRP", -1},
		{"some.show.1x02.hdtv-lol", 1, []int{2}, show.QualitySDTV, "lol", -1},
		{"Some.Show.S01E05.v2.720p.HDTV-GRP", 1, []int{5}, show.QualityHDTV, "GRP", 2},
		{"Some.Show.S03E09.2160p.WEB-DL-GRP", 3, []int{9}, show.QualityUHD, "GRP", -1},
	}

	for _, tc := range cases {
		parsed, err := p.Parse(tc.title)
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.title, err)
			continue
		}
		if parsed.Season != tc.season {
			t.Errorf("Parse(%q) season = %d, want %d", tc.title, parsed.Season, tc.season)
		}
		if len(parsed.Episodes) != len(tc.episodes) {
			t.Errorf("Parse(%q) episodes = %v, want %v", tc.title, parsed.Episodes, tc.episodes)
		} else {
			for i := range tc.episodes {
				if parsed.Episodes[i] != tc.episodes[i] {
					t.Errorf("Parse(%q) episodes = %v, want %v", tc.title, parsed.Episodes, tc.episodes)
					break
				}
			}
		}
		if parsed.Quality != tc.quality {
			t.Errorf("Parse(%q) quality = %s, want %s", tc.title, parsed.Quality, tc.quality)
		}
		if parsed.ReleaseGroup != tc.group {
			t.Errorf("Parse(%q) group = %q, want %q", tc.title, parsed.ReleaseGroup, tc.group)
		}
		if parsed.Version != tc.version {
			t.Errorf("Parse(%q) version = %d, want %d", tc.title, parsed.Version, tc.version)
		}
	}
}

func TestParseAirByDate(t *testing.T) {
	p := newTestParser(t, "Some Show")

	parsed, err := p.Parse("Some.Show.2024.01.02.720p.HDTV-GRP")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Season != -1 {
		t.Errorf("air-by-date season = %d, want -1", parsed.Season)
	}
	if len(parsed.Episodes) != 0 {
		t.Errorf("air-by-date episodes = %v, want none", parsed.Episodes)
	}
	if parsed.Show == nil {
		t.Errorf("air-by-date release did not resolve its show")
	}
}

func TestParseErrors(t *testing.T) {
	p := newTestParser(t, "Some Show")

	if _, err := p.Parse("not a release name at all"); !errors.Is(err, ErrUnparsable) {
		t.Errorf("unnumbered title error = %v, want ErrUnparsable", err)
	}
	if _, err := p.Parse(""); !errors.Is(err, ErrUnparsable) {
		t.Errorf("empty title error = %v, want ErrUnparsable", err)
	}
	if _, err := p.Parse("Unknown.Show.S01E01.720p.HDTV-GRP"); !errors.Is(err, ErrUnknownShow) {
		t.Errorf("unknown show error = %v, want ErrUnknownShow", err)
	}
}

func TestParseQuality(t *testing.T) {
	cases := map[string]show.Quality{
		"Show.S01E01.720p.HDTV-GRP":    show.QualityHDTV,
		"Show.S01E01.720p.WEB-DL-GRP":  show.QualityHDWebDL,
		"Show.S01E01.1080p.BluRay-GRP": show.QualityFullHDBluRay,
		"Show.S01E01.HDTV.x264-GRP":    show.QualitySDTV,
		"Show.S01E01.DVDRip-GRP":       show.QualitySDDVD,
		"Show.S01E01-GRP":              show.QualityUnknown,
	}
	for title, want := range cases {
		if got := ParseQuality(title); got != want {
			t.Errorf("ParseQuality(%q) = %s, want %s", title, got, want)
		}
	}
}

func TestWordFilter(t *testing.T) {
	f := &WordFilter{}
	if f.Accept("Show.S01E01.sample.720p-GRP") {
		t.Error("sample release accepted")
	}
	if f.Accept("Show.S01E01.720p.passworded-GRP") {
		t.Error("passworded release accepted")
	}
	if f.Accept("Show.S01E01.720p.exe-installer.exe") {
		t.Error("executable accepted")
	}
	if f.Accept("") {
		t.Error("empty title accepted")
	}
	if !f.Accept("Show.S01E01.720p.HDTV-GRP") {
		t.Error("clean release rejected")
	}

	ignored := &WordFilter{Ignored: []string{"german"}}
	if ignored.Accept("Show.S01E01.German.720p.HDTV-GRP") {
		t.Error("ignored word not applied")
	}

	required := &WordFilter{Required: []string{"proper"}}
	if required.Accept("Show.S01E01.720p.HDTV-GRP") {
		t.Error("required word not enforced")
	}
	if !required.Accept("Show.S01E01.PROPER.720p.HDTV-GRP") {
		t.Error("required word rejected a matching title")
	}
}
