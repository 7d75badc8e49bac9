package config

import (
	"path/filepath"
	"testing"
)

func TestLoadFrom_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	def := DefaultConfig()
	if cfg.Thresholds.SEISprawl != def.Thresholds.SEISprawl {
		t.Fatalf("thresholds = %+v, want defaults", cfg.Thresholds)
	}
	if cfg.Store.Path == "" {
		t.Fatalf("expected a default store path to be filled in")
	}
}

func TestSaveTo_ThenLoadFrom_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	cfg := DefaultConfig()
	cfg.Transcript.Roots = []string{"/a/b", "/a/b", "  ", "/c/d"}
	cfg.Retention.Days = 45

	if err := SaveTo(path, cfg); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if loaded.Retention.Days != 45 {
		t.Fatalf("retention days = %d, want 45", loaded.Retention.Days)
	}
	if len(loaded.Transcript.Roots) != 2 {
		t.Fatalf("roots = %v, want deduped to 2 entries", loaded.Transcript.Roots)
	}
}

func TestNormalize_FillsZeroThresholdsWithDefaults(t *testing.T) {
	cfg := Config{} // every field zero-valued
	got := normalize(cfg)
	def := DefaultConfig()
	if got.Thresholds != def.Thresholds {
		t.Fatalf("thresholds = %+v, want %+v", got.Thresholds, def.Thresholds)
	}
	if got.Watch.DebounceMillis != def.Watch.DebounceMillis {
		t.Fatalf("debounce = %d, want %d", got.Watch.DebounceMillis, def.Watch.DebounceMillis)
	}
	if got.Concurrency != def.Concurrency {
		t.Fatalf("concurrency = %d, want %d", got.Concurrency, def.Concurrency)
	}
}

func TestNormalize_PreservesExplicitOverrides(t *testing.T) {
	cfg := Config{}
	cfg.Thresholds.SEISprawl = 0.2
	cfg.Concurrency = 16
	got := normalize(cfg)
	if got.Thresholds.SEISprawl != 0.2 {
		t.Fatalf("sei sprawl = %v, want 0.2 preserved", got.Thresholds.SEISprawl)
	}
	if got.Concurrency != 16 {
		t.Fatalf("concurrency = %d, want 16 preserved", got.Concurrency)
	}
}

func TestSaveTranscriptRootsTo_ReadModifyWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := SaveTranscriptRootsTo(path, []string{"/x"}); err != nil {
		t.Fatalf("SaveTranscriptRootsTo: %v", err)
	}
	if err := SaveRetentionDaysTo(path, 7); err != nil {
		t.Fatalf("SaveRetentionDaysTo: %v", err)
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Transcript.Roots) != 1 || cfg.Transcript.Roots[0] != "/x" {
		t.Fatalf("roots = %v, want [/x] preserved across the second save", cfg.Transcript.Roots)
	}
	if cfg.Retention.Days != 7 {
		t.Fatalf("retention days = %d, want 7", cfg.Retention.Days)
	}
}
