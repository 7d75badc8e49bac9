// Package config loads and saves the settings.json configuration file,
// adapted from the teacher's read-modify-write pattern to this repo's
// own domain: transcript roots, anti-pattern thresholds, store location,
// watcher debounce, retention, and concurrency.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// ThresholdsConfig holds anti-pattern thresholds (spec.md §4.K). Zero
// values fall back to the built-in defaults at normalization time. The
// detector in internal/antipattern does not read these values; it uses
// its own built-in thresholds.
type ThresholdsConfig struct {
	SEISprawl           float64 `json:"sei_sprawl"`
	CERChurn            float64 `json:"cer_churn"`
	CostSpikeMultiplier float64 `json:"cost_spike_multiplier"`
	LongTurnMs          int64   `json:"long_turn_ms"`
	ToolFailureStreak   int     `json:"tool_failure_streak"`
	ReworkRatio         float64 `json:"rework_ratio"`
}

// StoreConfig locates the embedded SQL database.
type StoreConfig struct {
	Path string `json:"path"`
}

// WatchConfig tunes the filesystem watcher.
type WatchConfig struct {
	Enabled        bool `json:"enabled"`
	DebounceMillis int  `json:"debounce_millis"`
}

// RetentionConfig records a retention window in days. It is stored and
// normalized only; no code deletes ingested data by it.
type RetentionConfig struct {
	Days int `json:"days"`
}

// TranscriptConfig names where to discover transcript files.
type TranscriptConfig struct {
	Roots       []string `json:"roots"`
	HistoryPath string   `json:"history_path"`
}

// Config is the full settings.json surface.
type Config struct {
	Transcript  TranscriptConfig `json:"transcript"`
	Thresholds  ThresholdsConfig `json:"thresholds"`
	Store       StoreConfig      `json:"store"`
	Watch       WatchConfig      `json:"watch"`
	Retention   RetentionConfig  `json:"retention"`
	Concurrency int              `json:"concurrency"`
}

func DefaultConfig() Config {
	return Config{
		Thresholds: ThresholdsConfig{
			SEISprawl:           0.1,
			CERChurn:            0.4,
			CostSpikeMultiplier: 3.0,
			LongTurnMs:          300_000,
			ToolFailureStreak:   3,
			ReworkRatio:         0.4,
		},
		Watch:       WatchConfig{Enabled: true, DebounceMillis: 500},
		Retention:   RetentionConfig{Days: 90},
		Concurrency: 8,
	}
}

func ConfigDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "agentanalytics")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "agentanalytics")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "settings.json")
}

func DefaultStorePath() string {
	return filepath.Join(dataDir(), "claude-analytics", "analytics.db")
}

func dataDir() string {
	switch runtime.GOOS {
	case "windows":
		return os.Getenv("APPDATA")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return xdg
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share")
	}
}

func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg = normalize(cfg)
	return cfg, nil
}

func normalize(cfg Config) Config {
	def := DefaultConfig()

	if cfg.Thresholds.SEISprawl <= 0 {
		cfg.Thresholds.SEISprawl = def.Thresholds.SEISprawl
	}
	if cfg.Thresholds.CERChurn <= 0 {
		cfg.Thresholds.CERChurn = def.Thresholds.CERChurn
	}
	if cfg.Thresholds.CostSpikeMultiplier <= 0 {
		cfg.Thresholds.CostSpikeMultiplier = def.Thresholds.CostSpikeMultiplier
	}
	if cfg.Thresholds.LongTurnMs <= 0 {
		cfg.Thresholds.LongTurnMs = def.Thresholds.LongTurnMs
	}
	if cfg.Thresholds.ToolFailureStreak <= 0 {
		cfg.Thresholds.ToolFailureStreak = def.Thresholds.ToolFailureStreak
	}
	if cfg.Thresholds.ReworkRatio <= 0 {
		cfg.Thresholds.ReworkRatio = def.Thresholds.ReworkRatio
	}
	if cfg.Watch.DebounceMillis <= 0 {
		cfg.Watch.DebounceMillis = def.Watch.DebounceMillis
	}
	if cfg.Retention.Days <= 0 {
		cfg.Retention.Days = def.Retention.Days
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	cfg.Transcript.Roots = normalizeRoots(cfg.Transcript.Roots)

	return cfg
}

func normalizeRoots(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	trimmed := lo.Map(in, func(r string, _ int) string { return strings.TrimSpace(r) })
	filtered := lo.Filter(trimmed, func(r string, _ int) bool { return r != "" })
	return lo.Uniq(filtered)
}

// saveMu guards read-modify-write cycles on the config file.
var saveMu sync.Mutex

func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

func SaveTo(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SaveTranscriptRoots persists a new root list into the config file
// (read-modify-write).
func SaveTranscriptRoots(roots []string) error {
	return SaveTranscriptRootsTo(ConfigPath(), roots)
}

func SaveTranscriptRootsTo(path string, roots []string) error {
	saveMu.Lock()
	defer saveMu.Unlock()

	cfg, err := LoadFrom(path)
	if err != nil {
		cfg = DefaultConfig()
	}
	cfg.Transcript.Roots = normalizeRoots(roots)
	return SaveTo(path, cfg)
}

// SaveRetentionDays persists a new retention window (read-modify-write).
func SaveRetentionDays(days int) error {
	return SaveRetentionDaysTo(ConfigPath(), days)
}

func SaveRetentionDaysTo(path string, days int) error {
	saveMu.Lock()
	defer saveMu.Unlock()

	cfg, err := LoadFrom(path)
	if err != nil {
		cfg = DefaultConfig()
	}
	if days > 0 {
		cfg.Retention.Days = days
	}
	return SaveTo(path, cfg)
}
