// Package config loads the program settings from config.yaml, a .env file
// and PORTFOLIO_* environment variables, in increasing precedence. The
// program only reads configuration; it never writes it back.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHubURL          = "https://huggingface.co"
	DefaultDownloadTimeout = 5 * time.Minute
	DefaultMaxTokens       = 150
	DefaultTemperature     = 0.7
	DefaultLogLevel        = "info"
)

type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Generation GenerationConfig `yaml:"generation"`
	UI         UIConfig         `yaml:"ui"`
	Log        LogConfig        `yaml:"log"`
}

type ModelConfig struct {
	HubURL          string        `yaml:"hub_url"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	// CacheDir keeps downloaded model files between runs.
	CacheDir string `yaml:"cache_dir"`
	// RuntimeLibrary is the onnxruntime shared library; empty lets the
	// runtime bindings pick the platform default.
	RuntimeLibrary string `yaml:"runtime_library"`
}

type GenerationConfig struct {
	// MaxTokens of zero means DefaultMaxTokens.
	MaxTokens int `yaml:"max_tokens"`
	// A pointer so that an explicit 0 survives defaulting.
	Temperature *float64 `yaml:"temperature"`
}

type UIConfig struct {
	// Pointers so that an explicit false in the file survives defaulting.
	Backdrop  *bool `yaml:"backdrop"`
	AltScreen *bool `yaml:"alt_screen"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// BackdropEnabled reports whether the animated background is drawn.
func (u UIConfig) BackdropEnabled() bool {
	return u.Backdrop == nil || *u.Backdrop
}

// AltScreenEnabled reports whether the TUI takes over the whole screen.
func (u UIConfig) AltScreenEnabled() bool {
	return u.AltScreen == nil || *u.AltScreen
}

// TemperatureValue returns the configured temperature or DefaultTemperature.
func (g GenerationConfig) TemperatureValue() float64 {
	if g.Temperature == nil {
		return DefaultTemperature
	}
	return *g.Temperature
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	cfg := &Config{}
	cfg.fillDefaults()
	return cfg
}

// Load reads path, or the default config.yaml when path is empty. A missing
// default file is not an error. A .env file in the working directory is
// loaded into the environment first, without overriding variables that are
// already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir: %w", err)
		}
		path = p
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("PORTFOLIO_HUB_URL", &c.Model.HubURL)
	str("PORTFOLIO_CACHE_DIR", &c.Model.CacheDir)
	str("PORTFOLIO_ONNXRUNTIME_LIB", &c.Model.RuntimeLibrary)
	str("PORTFOLIO_LOG_LEVEL", &c.Log.Level)
	str("PORTFOLIO_LOG_FILE", &c.Log.File)

	if v := getenv("PORTFOLIO_DOWNLOAD_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PORTFOLIO_DOWNLOAD_TIMEOUT: %w", err)
		}
		c.Model.DownloadTimeout = d
	}
	if v := getenv("PORTFOLIO_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORTFOLIO_MAX_TOKENS: %w", err)
		}
		c.Generation.MaxTokens = n
	}
	if v := getenv("PORTFOLIO_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PORTFOLIO_TEMPERATURE: %w", err)
		}
		c.Generation.Temperature = &f
	}
	for key, dst := range map[string]**bool{
		"PORTFOLIO_BACKDROP":   &c.UI.Backdrop,
		"PORTFOLIO_ALT_SCREEN": &c.UI.AltScreen,
	} {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = &b
		}
	}
	return nil
}

func (c *Config) fillDefaults() {
	if c.Model.HubURL == "" {
		c.Model.HubURL = DefaultHubURL
	}
	if c.Model.DownloadTimeout == 0 {
		c.Model.DownloadTimeout = DefaultDownloadTimeout
	}
	if c.Generation.MaxTokens == 0 {
		c.Generation.MaxTokens = DefaultMaxTokens
	}
	if c.Generation.Temperature == nil {
		t := DefaultTemperature
		c.Generation.Temperature = &t
	}
	if c.Model.CacheDir == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			c.Model.CacheDir = filepath.Join(dir, appName)
		} else {
			c.Model.CacheDir = filepath.Join(os.TempDir(), appName)
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.File == "" {
		if dir, err := GetConfigDir(); err == nil {
			c.Log.File = filepath.Join(dir, appName+".log")
		} else {
			c.Log.File = filepath.Join(os.TempDir(), appName+".log")
		}
	}
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	var errs []error
	if !strings.HasPrefix(c.Model.HubURL, "http://") && !strings.HasPrefix(c.Model.HubURL, "https://") {
		errs = append(errs, fmt.Errorf("model.hub_url must be an http(s) URL, got %q", c.Model.HubURL))
	}
	if c.Model.DownloadTimeout < 0 {
		errs = append(errs, fmt.Errorf("model.download_timeout must not be negative"))
	}
	if c.Generation.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("generation.max_tokens must not be negative"))
	}
	if c.Generation.Temperature != nil && *c.Generation.Temperature < 0 {
		errs = append(errs, fmt.Errorf("generation.temperature must not be negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	return errors.Join(errs...)
}
