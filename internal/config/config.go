// Package config loads the launcher settings. Values come from three layers:
// built-in defaults, <data>/settings.yaml, then FIRECRAFT_* environment
// variables. CLI flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/firemods/firecraft-launcher/internal/paths"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "FIRECRAFT_"

const (
	DefaultManifestURL = "https://firemods.net/storage/Modpacks/version.json"
	DefaultNewsURL     = "https://firemods.net/storage/Modpacks/noticias.json"
	DefaultReleasesURL = "https://api.github.com/repos/firemods/firecraft-launcher/releases/latest"
	DefaultDiscordApp  = "1400661686792491171"
	DefaultBackend     = "firecraft-core"
	DefaultModality    = "firemods-neoforge"
	DefaultInstance    = 47651
)

var memoryPattern = regexp.MustCompile(`^([1-9][0-9]*)([MG])$`)

// Memory holds JVM heap bounds in launcher notation ("2G", "512M")
type Memory struct {
	Min string `yaml:"min" env:"MIN"`
	Max string `yaml:"max" env:"MAX"`
}

// Status configures the server status poller
type Status struct {
	Provider string        `yaml:"provider" env:"PROVIDER"`
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// Discord configures Rich Presence
type Discord struct {
	ClientID string        `yaml:"client_id" env:"CLIENT_ID"`
	Retry    time.Duration `yaml:"retry" env:"RETRY"`
	Disabled bool          `yaml:"disabled" env:"DISABLED"`
}

// Microsoft configures the device-code login
type Microsoft struct {
	ClientID string `yaml:"client_id" env:"CLIENT_ID"`
}

// Config is the full launcher configuration
type Config struct {
	// DataDir is never persisted; it decides where settings.yaml lives.
	DataDir string `yaml:"-" env:"DATA_DIR"`

	Username       string    `yaml:"username" env:"USERNAME"`
	UseMicrosoft   bool      `yaml:"use_microsoft" env:"USE_MICROSOFT"`
	Memory         Memory    `yaml:"memory" envPrefix:"MEMORY_"`
	Modality       string    `yaml:"modality" env:"MODALITY"`
	VanillaVersion string    `yaml:"vanilla_version" env:"VANILLA_VERSION"`
	JavaPath       string    `yaml:"java_path" env:"JAVA_PATH"`
	Backend        string    `yaml:"backend" env:"BACKEND"`
	ManifestURL    string    `yaml:"manifest_url" env:"MANIFEST_URL"`
	NewsURL        string    `yaml:"news_url" env:"NEWS_URL"`
	ReleasesURL    string    `yaml:"releases_url" env:"RELEASES_URL"`
	Status         Status    `yaml:"status" envPrefix:"STATUS_"`
	Discord        Discord   `yaml:"discord" envPrefix:"DISCORD_"`
	Microsoft      Microsoft `yaml:"microsoft" envPrefix:"MICROSOFT_"`
	InstancePort   int       `yaml:"instance_port" env:"INSTANCE_PORT"`
	Quiet          bool      `yaml:"quiet" env:"QUIET"`
	Verbose        bool      `yaml:"verbose" env:"VERBOSE"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Memory:         Memory{Min: "2G", Max: "4G"},
		Modality:       DefaultModality,
		VanillaVersion: "1.21.1",
		Backend:        DefaultBackend,
		ManifestURL:    DefaultManifestURL,
		NewsURL:        DefaultNewsURL,
		ReleasesURL:    DefaultReleasesURL,
		Status: Status{
			Provider: "minetools",
			Interval: 5 * time.Second,
		},
		Discord: Discord{
			ClientID: DefaultDiscordApp,
			Retry:    15 * time.Second,
		},
		InstancePort: DefaultInstance,
	}
}

// Load reads settings.yaml from dataDir (missing file means defaults) and
// applies environment overrides. An empty dataDir resolves the platform default.
func Load(dataDir string) (Config, error) {
	cfg := Default()

	if dataDir == "" {
		dataDir = os.Getenv(EnvPrefix + "DATA_DIR")
	}
	dir, err := paths.DataDir(dataDir)
	if err != nil {
		return Config{}, err
	}
	cfg.DataDir = dir

	data, err := os.ReadFile(paths.SettingsFile(dir))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("failed to read settings: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse settings: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	// The env layer may have moved the data dir; keep it absolute.
	if cfg.DataDir != dir {
		if cfg.DataDir, err = paths.DataDir(cfg.DataDir); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

// Save writes the persisted subset of cfg to <DataDir>/settings.yaml
func Save(cfg Config) error {
	if cfg.DataDir == "" {
		return errors.New("config has no data dir")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	path := paths.SettingsFile(cfg.DataDir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}

// Validate checks values a user can get wrong by hand-editing settings.yaml
func (c Config) Validate() error {
	minMB, err := MemoryMB(c.Memory.Min)
	if err != nil {
		return fmt.Errorf("memory.min: %w", err)
	}
	maxMB, err := MemoryMB(c.Memory.Max)
	if err != nil {
		return fmt.Errorf("memory.max: %w", err)
	}
	if minMB > maxMB {
		return fmt.Errorf("memory.min (%s) is larger than memory.max (%s)", c.Memory.Min, c.Memory.Max)
	}
	if c.Status.Interval < time.Second {
		return fmt.Errorf("status.interval must be at least 1s, got %s", c.Status.Interval)
	}
	if c.Discord.Retry <= 0 {
		return fmt.Errorf("discord.retry must be positive, got %s", c.Discord.Retry)
	}
	if c.InstancePort <= 0 || c.InstancePort > 65535 {
		return fmt.Errorf("instance_port out of range: %d", c.InstancePort)
	}
	return nil
}

// MemoryMB converts "2G" / "512M" into megabytes
func MemoryMB(v string) (int, error) {
	m := memoryPattern.FindStringSubmatch(v)
	if m == nil {
		return 0, fmt.Errorf("invalid memory value %q (expected e.g. 2G or 512M)", v)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid memory value %q: %w", v, err)
	}
	if m[2] == "G" {
		n *= 1024
	}
	return n, nil
}

// InstanceAddr is the loopback address used for single-instance activation
func (c Config) InstanceAddr() string {
	return "127.0.0.1:" + strconv.Itoa(c.InstancePort)
}

// Dir joins elements onto the data directory
func (c Config) Dir(elem ...string) string {
	return filepath.Join(append([]string{c.DataDir}, elem...)...)
}
