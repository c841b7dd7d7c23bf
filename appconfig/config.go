package appconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stevecastle/vdr/platform"
)

// Config holds the desktop shell settings: where the command bridge listens,
// how many invocations run at once and how the shell starts.
type Config struct {
	// Bridge listen address
	Host string `json:"host"`
	Port int    `json:"port"`

	// Maximum number of commands executing concurrently
	Workers int `json:"workers"`

	// Finished jobs kept for GET /jobs
	JobRetention int `json:"jobRetention"`

	// Open the front-end in the browser when the tray comes up
	OpenBrowser *bool `json:"openBrowser,omitempty"`

	// zerolog level name: debug, info, warn, error
	LogLevel string `json:"logLevel"`

	// JWT Secret for the bridge session token
	JWTSecret string `json:"jwtSecret"`
}

const (
	DefaultHost    = "127.0.0.1"
	DefaultPort    = 8091
	DefaultWorkers = 8

	DefaultJobRetention = 200
)

var (
	cfgMu sync.RWMutex
	cfg   Config
)

// ShouldOpenBrowser reports whether the front-end is opened on startup.
func (c Config) ShouldOpenBrowser() bool {
	return c.OpenBrowser == nil || *c.OpenBrowser
}

// Addr returns host:port for the bridge listener.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BaseURL is the URL the front-end is served from.
func (c Config) BaseURL() string {
	return fmt.Sprintf("http://%s/", c.Addr())
}

func defaultConfig() Config {
	return Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		Workers:      DefaultWorkers,
		JobRetention: DefaultJobRetention,
		LogLevel:     "info",
		JWTSecret:    uuid.New().String(),
	}
}

// Get returns a copy of the current in-memory config.
func Get() Config {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg
}

// Set replaces the in-memory config.
func Set(c Config) {
	cfgMu.Lock()
	cfg = c
	cfgMu.Unlock()
}

func isJSONObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// deepMergeJSON overlays src onto dst, recursing into nested objects so keys
// we don't know about survive a save.
func deepMergeJSON(dst, src map[string]json.RawMessage) {
	for k, v := range src {
		if existing, ok := dst[k]; ok && isJSONObject(existing) && isJSONObject(v) {
			var dstObj, srcObj map[string]json.RawMessage
			if json.Unmarshal(existing, &dstObj) != nil || json.Unmarshal(v, &srcObj) != nil {
				dst[k] = v
				continue
			}
			deepMergeJSON(dstObj, srcObj)
			merged, err := json.Marshal(dstObj)
			if err != nil {
				dst[k] = v
				continue
			}
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}

// ConfigPath returns the full path to config.json.
func ConfigPath() string {
	return filepath.Join(platform.GetDataDir(), "config.json")
}

// Load reads the config from disk and updates the in-memory config. It returns
// the config and its path. A missing file is created with defaults.
func Load() (Config, string, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom is Load against an explicit file path.
func LoadFrom(path string) (Config, string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Config{}, path, fmt.Errorf("failed to create config directory %s: %w", filepath.Dir(path), err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, path, fmt.Errorf("failed to read config file at %s: %w", path, err)
		}
		def := defaultConfig()
		if err := SaveTo(path, def); err != nil {
			return Config{}, path, fmt.Errorf("failed to create default config file: %w", err)
		}
		return def, path, nil
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, path, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	def := defaultConfig()
	needsSave := false

	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Port <= 0 || c.Port > 65535 {
		c.Port = def.Port
		needsSave = true
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.JobRetention <= 0 {
		c.JobRetention = def.JobRetention
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.JWTSecret == "" {
		c.JWTSecret = def.JWTSecret
		needsSave = true
	}

	if needsSave {
		if err := SaveTo(path, c); err != nil {
			// keep going with the in-memory config
			log.Warn().Err(err).Str("path", path).Msg("failed to save updated config")
		}
	}

	Set(c)
	return c, path, nil
}

// SaveTo writes c to path, preserving unknown keys already in the file.
func SaveTo(path string, c Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	base := map[string]json.RawMessage{}
	if existing, readErr := os.ReadFile(path); readErr == nil {
		var tmp map[string]json.RawMessage
		if err := json.Unmarshal(existing, &tmp); err == nil {
			base = tmp
		}
	}

	marshaled, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	incoming := map[string]json.RawMessage{}
	if err := json.Unmarshal(marshaled, &incoming); err != nil {
		return fmt.Errorf("failed to map config JSON: %w", err)
	}

	deepMergeJSON(base, incoming)

	mergedData, err := json.MarshalIndent(base, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal merged config: %w", err)
	}
	if err := os.WriteFile(path, mergedData, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	Set(c)
	return nil
}
