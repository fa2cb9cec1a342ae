// Package gazeconfig loads the editing core's tunables from a TOML
// file, following the same load/default/save shape as dh-cli's
// internal/config package.
package gazeconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the knobs spec.md leaves as "recommended" or
// "configurable": tree fan-out, memory budget, loader chunk size, the
// small-insert layout threshold, and tab-stop width.
type Config struct {
	// Fanout is the linemap tree's fixed fan-out F. Spec.md recommends
	// 16-64.
	Fanout int `toml:"fanout,omitempty"`

	// MemoryBudgetBytes is the advisory cap the loader's LRU eviction
	// targets. Best-effort, not instant (spec.md §4.B).
	MemoryBudgetBytes int64 `toml:"memory_budget_bytes,omitempty"`

	// ChunkSize is the loader's bounded per-read granularity.
	ChunkSize int `toml:"chunk_size,omitempty"`

	// ResidentInsertThreshold is the largest insert size computed as
	// layout on the calling thread rather than scheduled as a
	// background scan (spec.md §4.F).
	ResidentInsertThreshold int `toml:"resident_insert_threshold,omitempty"`

	// TabStopWidth is the column width a tab snaps to, in the layout
	// model's font-height x units (spec.md §4.D).
	TabStopWidth float64 `toml:"tab_stop_width,omitempty"`

	// LogLevel configures internal/glog.
	LogLevel string `toml:"log_level,omitempty"`
}

// Default returns the recommended configuration.
func Default() Config {
	return Config{
		Fanout:                  32,
		MemoryBudgetBytes:       256 << 20, // 256 MiB
		ChunkSize:               1 << 20,   // 1 MiB
		ResidentInsertThreshold: 64 << 10,  // 64 KiB
		TabStopWidth:            8,
		LogLevel:                "info",
	}
}

// homeOverride is set by --config-dir (via SetHome) and takes
// precedence over GAZE_HOME, mirroring dh-cli's SetConfigDir/DH_HOME
// precedence.
var homeOverride string

// SetHome overrides the config directory (flag/test hook).
func SetHome(dir string) {
	homeOverride = dir
}

// Home returns the config directory: override > GAZE_HOME env > ~/.gaze.
func Home() string {
	if homeOverride != "" {
		return homeOverride
	}
	if v := os.Getenv("GAZE_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".gaze")
	}
	return filepath.Join(home, ".gaze")
}

// Path returns the full path to config.toml.
func Path() string {
	return filepath.Join(Home(), "config.toml")
}

// Load reads config.toml, filling unset fields with Default's values.
// A missing file is not an error; it yields the defaults.
func Load() (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	// Unmarshal over the defaults so a partial file only overrides the
	// fields it mentions.
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config.toml: %w", err)
	}
	return cfg, nil
}

// Save writes cfg back to config.toml, creating the home directory if
// needed.
func Save(cfg Config) error {
	if err := os.MkdirAll(Home(), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(Path(), data, 0o644)
}
