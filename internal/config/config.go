// Package config manages the application settings document.
//
// Settings live in a versioned YAML file. Every document carries an
// explicit schema version, and old versions are upgraded through a
// dedicated migration function instead of ad hoc merging of partial
// documents. Environment variables override file values after loading.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// CurrentVersion is the settings schema version this build writes.
//
// Version history:
//  1 - flat document: draw_count, draw_mode (0=equal, 1=weighted),
//      allow_repeat
//  2 - nested draw/history/animation sections, named draw modes
const CurrentVersion = 2

// Draw modes.
const (
	ModeEqual    = "equal"
	ModeWeighted = "weighted"
)

// Config is the full settings document, schema version 2.
type Config struct {
	Version int    `yaml:"version" env:"-"`
	DataDir string `yaml:"data_dir" env:"STARRAND_DATA_DIR"`

	Draw      DrawSettings      `yaml:"draw"`
	History   HistorySettings   `yaml:"history"`
	Animation AnimationSettings `yaml:"animation"`
}

// DrawSettings configures the draw defaults the CLI starts from.
type DrawSettings struct {
	Count       int    `yaml:"count" env:"STARRAND_DRAW_COUNT"`
	Mode        string `yaml:"mode" env:"STARRAND_DRAW_MODE"`
	AllowRepeat bool   `yaml:"allow_repeat" env:"STARRAND_ALLOW_REPEAT"`
}

// HistorySettings configures the history store.
type HistorySettings struct {
	// IndexCap bounds the history index. Evicted entries keep their
	// partition files; see the history package.
	IndexCap int `yaml:"index_cap" env:"STARRAND_HISTORY_INDEX_CAP"`
}

// AnimationSettings configures the pre-draw roll.
type AnimationSettings struct {
	Enabled    bool `yaml:"enabled" env:"STARRAND_ANIMATION"`
	DurationMS int  `yaml:"duration_ms" env:"STARRAND_ANIMATION_DURATION_MS"`
	FPS        int  `yaml:"fps" env:"STARRAND_ANIMATION_FPS"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Version: CurrentVersion,
		DataDir: "coredata",
		Draw: DrawSettings{
			Count: 1,
			Mode:  ModeWeighted,
		},
		History: HistorySettings{
			IndexCap: 100,
		},
		Animation: AnimationSettings{
			Enabled:    true,
			DurationMS: 3000,
			FPS:        30,
		},
	}
}

// Load reads settings from path, migrates old schema versions, and applies
// environment overrides. A missing file yields the defaults (still subject
// to the environment).
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults stand.
	case err != nil:
		return Config{}, fmt.Errorf("read settings %s: %w", path, err)
	default:
		cfg, err = parse(data)
		if err != nil {
			return Config{}, fmt.Errorf("settings %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("settings environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the settings document at the current schema version.
func Save(path string, cfg Config) error {
	cfg.Version = CurrentVersion
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	return nil
}

// parse decodes a settings document of any known schema version.
func parse(data []byte) (Config, error) {
	var probe struct {
		Version int `yaml:"version"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return Config{}, fmt.Errorf("decode settings: %w", err)
	}

	switch probe.Version {
	case 0, 1:
		return migrateV1(data)
	case CurrentVersion:
		cfg := Default()
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode settings: %w", err)
		}
		return cfg, nil
	default:
		return Config{}, fmt.Errorf("unsupported settings version %d", probe.Version)
	}
}

// configV1 is the legacy flat settings document.
type configV1 struct {
	Version     int    `yaml:"version"`
	DataDir     string `yaml:"data_dir"`
	DrawCount   int    `yaml:"draw_count"`
	DrawMode    int    `yaml:"draw_mode"`
	AllowRepeat bool   `yaml:"allow_repeat"`
}

// migrateV1 upgrades a version-1 (or unversioned) document. Unknown keys
// are dropped; fields the old schema never had take their defaults.
func migrateV1(data []byte) (Config, error) {
	var old configV1
	if err := yaml.Unmarshal(data, &old); err != nil {
		return Config{}, fmt.Errorf("decode v1 settings: %w", err)
	}

	cfg := Default()
	if old.DataDir != "" {
		cfg.DataDir = old.DataDir
	}
	if old.DrawCount > 0 {
		cfg.Draw.Count = old.DrawCount
	}
	if old.DrawMode == 0 {
		cfg.Draw.Mode = ModeEqual
	} else {
		cfg.Draw.Mode = ModeWeighted
	}
	cfg.Draw.AllowRepeat = old.AllowRepeat
	return cfg, nil
}

func (c Config) validate() error {
	if c.Draw.Mode != ModeEqual && c.Draw.Mode != ModeWeighted {
		return fmt.Errorf("invalid draw mode %q: must be %q or %q", c.Draw.Mode, ModeEqual, ModeWeighted)
	}
	if c.Draw.Count <= 0 {
		return fmt.Errorf("draw count must be positive, got %d", c.Draw.Count)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	return nil
}
