// Package config loads the autosort configuration.
//
// Values are layered: built-in defaults, then the YAML file, then
// AUTOSORT_* environment variables. The merged result is validated against
// an embedded CUE schema before it is returned.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/autosort/internal/autosort"
)

//go:embed schema.cue
var schema string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AUTOSORT_"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// DefaultGames are the game ids LOOT ships masterlists for.
var DefaultGames = []string{
	"morrowind",
	"oblivion",
	"skyrim",
	"skyrimse",
	"skyrimvr",
	"fallout3",
	"falloutnv",
	"fallout4",
	"fallout4vr",
}

// Masterlist configures where masterlists come from.
type Masterlist struct {
	// Repository is a URL template; "%s" is replaced by the game id.
	Repository    string        `yaml:"repository" env:"REPOSITORY"`
	Branch        string        `yaml:"branch" env:"BRANCH"`
	Retries       int           `yaml:"retries" env:"RETRIES"`
	RetryInterval time.Duration `yaml:"retry_interval" env:"RETRY_INTERVAL"`
}

// Config is the full configuration.
type Config struct {
	AutoSort bool `yaml:"auto_sort" env:"AUTO_SORT"`

	// DataDir holds per-game plugin directories and masterlists.
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`

	// UserDataDir holds per-game userlists.
	UserDataDir string `yaml:"user_data_dir" env:"USER_DATA_DIR"`

	// Database is the sqlite file for history. Empty disables persistence.
	Database string `yaml:"database" env:"DATABASE"`

	// Listen is the address used by "autosort serve".
	Listen string `yaml:"listen" env:"LISTEN"`

	// Games lists the supported game ids.
	Games []string `yaml:"games" env:"GAMES" envSeparator:","`

	// Profiles maps game ids to install paths.
	Profiles map[string]string `yaml:"profiles" env:"PROFILES" envSeparator:"," envKeyValSeparator:"="`

	Masterlist Masterlist `yaml:"masterlist" envPrefix:"MASTERLIST_"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:     "data",
		UserDataDir: "userdata",
		Database:    "autosort.db",
		Listen:      "127.0.0.1:8089",
		Games:       slices.Clone(DefaultGames),
		Profiles:    map[string]string{},
		Masterlist: Masterlist{
			Repository:    autosort.DefaultMasterlistRepository,
			Branch:        autosort.DefaultMasterlistBranch,
			Retries:       2,
			RetryInterval: 2 * time.Second,
		},
	}
}

// Load reads path (optional: empty skips the file), applies environment
// overrides and validates the result. Relative directories are resolved
// against the directory of path.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		base := filepath.Dir(path)
		cfg.DataDir = resolve(base, cfg.DataDir)
		cfg.UserDataDir = resolve(base, cfg.UserDataDir)
		if cfg.Database != "" && cfg.Database != ":memory:" {
			cfg.Database = resolve(base, cfg.Database)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]string{}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate checks cfg against the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	s := ctx.CompileString(schema, cue.Filename("schema.cue"))
	if err := s.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	v := s.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c.projection()))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// projection renders c with the field names used by the YAML file.
func (c Config) projection() map[string]any {
	games := c.Games
	if games == nil {
		games = []string{}
	}
	profiles := c.Profiles
	if profiles == nil {
		profiles = map[string]string{}
	}
	return map[string]any{
		"auto_sort":     c.AutoSort,
		"data_dir":      c.DataDir,
		"user_data_dir": c.UserDataDir,
		"database":      c.Database,
		"listen":        c.Listen,
		"games":         games,
		"profiles":      profiles,
		"masterlist": map[string]any{
			"repository":     c.Masterlist.Repository,
			"branch":         c.Masterlist.Branch,
			"retries":        c.Masterlist.Retries,
			"retry_interval": int64(c.Masterlist.RetryInterval),
		},
	}
}

// Supported reports whether game is in Games.
func (c Config) Supported(game string) bool {
	return game != "" && slices.Contains(c.Games, game)
}

// GamePath returns the install path of game, empty when unknown.
func (c Config) GamePath(game string) string {
	return c.Profiles[game]
}

// PluginDir is the engine's working directory for game.
func (c Config) PluginDir(game string) string {
	return filepath.Join(c.DataDir, game)
}

// MasterlistPath is where the masterlist of game is mirrored.
func (c Config) MasterlistPath(game string) string {
	return filepath.Join(c.DataDir, game, "masterlist.yaml")
}

// UserlistPath is where the user's own rules for game live.
func (c Config) UserlistPath(game string) string {
	return filepath.Join(c.UserDataDir, game, "userlist.yaml")
}

// MasterlistSource converts the masterlist section for the core.
func (c Config) MasterlistSource() autosort.MasterlistSource {
	return autosort.MasterlistSource{
		Repository:    c.Masterlist.Repository,
		Branch:        c.Masterlist.Branch,
		Retries:       c.Masterlist.Retries,
		RetryInterval: c.Masterlist.RetryInterval,
	}
}

// Options builds the core options for cfg, leaving IDs, Stat and Metrics
// to the caller.
func (c Config) Options() autosort.Options {
	return autosort.Options{
		Layout:     c,
		Supported:  c.Supported,
		Masterlist: c.MasterlistSource(),
	}
}

var _ autosort.Layout = Config{}
