package defs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeDefinition(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeDefinition(t, dir, "minimal.yml", `
id: minimal
name: Minimal Provider
protocol: torrent
enabled: true
site_url: https://example.org
`)

	def, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if def.MinTimeMinutes != DefaultMinTimeMinutes {
		t.Errorf("min_time_minutes = %d, want default %d", def.MinTimeMinutes, DefaultMinTimeMinutes)
	}
	if def.MaxRecentItems != DefaultMaxRecentItems {
		t.Errorf("max_recent_items = %d, want default %d", def.MaxRecentItems, DefaultMaxRecentItems)
	}
	if def.StopAt != DefaultStopAt {
		t.Errorf("stop_at = %d, want default %d", def.StopAt, DefaultStopAt)
	}
	if def.ResultFormat != "rss" {
		t.Errorf("result_format = %q, want rss", def.ResultFormat)
	}
}

func TestLoadKeepsExplicitTuning(t *testing.T) {
	dir := t.TempDir()
	path := writeDefinition(t, dir, "tuned.yml", `
id: tuned
name: Tuned Provider
protocol: usenet
enabled: true
result_format: html
min_time_minutes: 25
max_recent_items: 9
stop_at: 1
`)

	def, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if def.MinTimeMinutes != 25 || def.MaxRecentItems != 9 || def.StopAt != 1 {
		t.Errorf("tuning = (%d, %d, %d), want explicit values kept",
			def.MinTimeMinutes, def.MaxRecentItems, def.StopAt)
	}
	if def.ResultFormat != "html" {
		t.Errorf("result_format = %q, want html", def.ResultFormat)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		def  Definition
		want string
	}{
		{"missing id", Definition{Name: "x", Protocol: "torrent"}, "missing id"},
		{"missing name", Definition{ID: "x", Protocol: "torrent"}, "missing name"},
		{"bad protocol", Definition{ID: "x", Name: "x", Protocol: "ftp"}, "invalid protocol"},
		{"conflicting scope", Definition{ID: "x", Name: "x", Protocol: "torrent", AnimeOnly: true, StandardOnly: true}, "anime_only"},
	}
	for _, tc := range cases {
		err := tc.def.Validate()
		if err == nil {
			t.Errorf("%s: Validate returned nil", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: error = %q, want mention of %q", tc.name, err, tc.want)
		}
	}

	ok := Definition{ID: "x", Name: "x", Protocol: "usenet"}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid definition rejected: %v", err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "zeta.yml", "id: zeta\nname: Zeta\nprotocol: torrent\n")
	writeDefinition(t, dir, "alpha.yaml", "id: alpha\nname: Alpha\nprotocol: usenet\n")
	writeDefinition(t, dir, "README.md", "not a definition")
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	defs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("loaded %d definitions, want 2", len(defs))
	}
	if defs[0].ID != "alpha" || defs[1].ID != "zeta" {
		t.Errorf("definitions = [%s, %s], want sorted by id", defs[0].ID, defs[1].ID)
	}
}

func TestLoadDirRejectsBrokenDefinition(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "broken.yml", "id: broken\nname: Broken\nprotocol: carrier-pigeon\n")

	if _, err := LoadDir(dir); err == nil {
		t.Error("LoadDir accepted a definition with an invalid protocol")
	}
}
