// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads StudyBuddy client configuration.
//
// Configuration comes from a single file named by the --config flag or
// the STUDYBUDDY_CONFIG environment variable. With neither set,
// [Default] is used unchanged. Files ending in .json or .jsonc are
// parsed as JSON with comments and trailing commas; anything else is
// parsed as YAML. Values absent from the file keep their defaults.
//
// The only expansion performed is ${VAR} and ${VAR:-default} in paths.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config
// file path.
const EnvConfigPath = "STUDYBUDDY_CONFIG"

// Config is the client configuration.
type Config struct {
	// BaseURL is the backend API root, including its path prefix
	// (e.g. "http://127.0.0.1:5000/api").
	BaseURL string `yaml:"base_url" json:"base_url"`

	// StatePath is the SQLite file holding persisted credentials.
	StatePath string `yaml:"state_path" json:"state_path"`

	HTTP    HTTPConfig    `yaml:"http" json:"http"`
	Polling PollingConfig `yaml:"polling" json:"polling"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// HTTPConfig configures the gateway transport.
type HTTPConfig struct {
	// Timeout bounds each request. Zero means no client-side timeout.
	Timeout Duration `yaml:"timeout" json:"timeout"`

	// DisableCacheBust stops the gateway from adding the _t query
	// parameter to GET requests.
	DisableCacheBust bool `yaml:"disable_cache_bust" json:"disable_cache_bust"`
}

// PollingConfig sets poll intervals.
type PollingConfig struct {
	Notifications Duration `yaml:"notifications" json:"notifications"`
	Chat          Duration `yaml:"chat" json:"chat"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`
}

// Default returns the built-in configuration: a backend on the local
// development port and state under the user config directory.
func Default() *Config {
	return &Config{
		BaseURL:   "http://127.0.0.1:5000/api",
		StatePath: defaultStatePath(),
		HTTP: HTTPConfig{
			Timeout: Duration(30 * time.Second),
		},
		Polling: PollingConfig{
			Notifications: Duration(30 * time.Second),
			Chat:          Duration(3 * time.Second),
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func defaultStatePath() string {
	directory := os.Getenv("XDG_CONFIG_HOME")
	if directory == "" {
		directory = filepath.Join("${HOME}", ".config")
	}
	return expandVars(filepath.Join(directory, "studybuddy", "state.db"))
}

// Load resolves the config file from path or, if path is empty, from
// STUDYBUDDY_CONFIG. With neither, it returns Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads and validates one config file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	config := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(config); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	config.StatePath = expandVars(config.StatePath)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return config, nil
}

// Validate checks the configuration, reporting every problem found.
func (c *Config) Validate() error {
	var errs []error

	parsed, err := url.Parse(c.BaseURL)
	switch {
	case c.BaseURL == "":
		errs = append(errs, errors.New("base_url is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("base_url: %w", err))
	case parsed.Scheme != "http" && parsed.Scheme != "https", parsed.Host == "":
		errs = append(errs, fmt.Errorf("base_url %q must be an absolute http(s) URL", c.BaseURL))
	}

	if c.StatePath == "" {
		errs = append(errs, errors.New("state_path is required"))
	}
	if c.HTTP.Timeout < 0 {
		errs = append(errs, errors.New("http.timeout must not be negative"))
	}
	if c.Polling.Notifications <= 0 {
		errs = append(errs, errors.New("polling.notifications must be positive"))
	}
	if c.Polling.Chat <= 0 {
		errs = append(errs, errors.New("polling.chat must be positive"))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging.level %q: want debug, info, warn, or error", name)
	}
	return level, nil
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(value string) string {
	return varPattern.ReplaceAllStringFunc(value, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if resolved := os.Getenv(parts[1]); resolved != "" {
			return resolved
		}
		return parts[2]
	})
}
