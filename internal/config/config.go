/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in
// the user scope. Environment variables are read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Backend       BackendConfig `yaml:"backend"`
	Server        ServerConfig  `yaml:"server"`
	Reader        ReaderConfig  `yaml:"reader"`
	Logging       LoggingConfig `yaml:"logging"`
}

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
	// CrashUpload sends crash reports to the backend on next start.
	CrashUpload bool `yaml:"crash_upload"`
	// Fonts lists family[:weight][:italic]=path entries for text layout
	// in the editor and in exports.
	Fonts []string `yaml:"fonts,omitempty"`
}

// BackendConfig is where the CLI finds the API. The token is not stored on
// disk; it lives in the OS keychain.
type BackendConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	TLSInsecure bool   `yaml:"tls_insecure"`
}

type ServerConfig struct {
	Addr       string `yaml:"addr"`
	DBDialect  string `yaml:"db_dialect"` // "sqlite" | "postgres"
	DSN        string `yaml:"dsn"`
	FilesDir   string `yaml:"files_dir"`
	PublicURL  string `yaml:"public_url"`
	AuthSecret string `yaml:"auth_secret"`
	// UploadsPerSecond throttles file uploads; 0 disables the limit.
	UploadsPerSecond float64       `yaml:"uploads_per_second"`
	MaxUploadMB      int           `yaml:"max_upload_mb"`
	TokenTTL         time.Duration `yaml:"token_ttl"`
	BundleTTL        time.Duration `yaml:"bundle_ttl"`
	SessionTTL       time.Duration `yaml:"session_ttl"`
	KeepRevisions    int           `yaml:"keep_revisions"`
}

type ReaderConfig struct {
	DefaultMode    string  `yaml:"default_mode"` // "focus" | "panel-to-panel"
	FocusPadding   float64 `yaml:"focus_padding"`
	ViewportWidth  float64 `yaml:"viewport_width"`
	ViewportHeight float64 `yaml:"viewport_height"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Backend:       BackendConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000},
		Server: ServerConfig{
			Addr:        ":8080",
			DBDialect:   "sqlite",
			DSN:         "instory.sqlite",
			FilesDir:    "files",
			MaxUploadMB: 50,
			TokenTTL:    24 * time.Hour,
			BundleTTL:   5 * time.Minute,
			SessionTTL:  2 * time.Hour,
		},
		Reader:  ReaderConfig{DefaultMode: "focus", FocusPadding: 24, ViewportWidth: 1280, ViewportHeight: 800},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath       = "INSTORY_CONFIG"
	EnvBackendURL       = "INSTORY_BACKEND_URL"
	EnvBackendTimeoutMs = "INSTORY_BACKEND_TIMEOUT_MS"
	EnvBackendTLSInsec  = "INSTORY_TLS_INSECURE"
	EnvTelemetryOptIn   = "INSTORY_TELEMETRY_OPT_IN"
	EnvCrashUpload      = "INSTORY_CRASH_UPLOAD"
	EnvAddr             = "INSTORY_ADDR"
	EnvDBDialect        = "INSTORY_DB_DIALECT"
	EnvDSN              = "INSTORY_DB_DSN"
	EnvDatabaseURL      = "DATABASE_URL"
	EnvFilesDir         = "INSTORY_FILES_DIR"
	EnvPublicURL        = "INSTORY_PUBLIC_URL"
	EnvAuthSecret       = "INSTORY_AUTH_SECRET"
	EnvReaderMode       = "INSTORY_READER_MODE"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "INSTORY_LOG_LEVEL"
	EnvLogFormat = "INSTORY_LOG_FORMAT"
	EnvLogSource = "INSTORY_LOG_SOURCE"
	EnvLogFile   = "INSTORY_LOG_FILE"
)

type override struct {
	key   string
	env   string
	apply func(cfg *AppConfig, v string)
}

var overrides = []override{
	{"backend.base_url", EnvBackendURL, func(c *AppConfig, v string) { c.Backend.BaseURL = v }},
	{"backend.timeout_ms", EnvBackendTimeoutMs, func(c *AppConfig, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.Backend.TimeoutMs = n
		}
	}},
	{"backend.tls_insecure", EnvBackendTLSInsec, func(c *AppConfig, v string) { c.Backend.TLSInsecure = truthy(v) }},
	{"general.telemetry_opt_in", EnvTelemetryOptIn, func(c *AppConfig, v string) { c.General.TelemetryOptIn = truthy(v) }},
	{"general.crash_upload", EnvCrashUpload, func(c *AppConfig, v string) { c.General.CrashUpload = truthy(v) }},
	{"server.addr", EnvAddr, func(c *AppConfig, v string) { c.Server.Addr = v }},
	{"server.db_dialect", EnvDBDialect, func(c *AppConfig, v string) { c.Server.DBDialect = strings.ToLower(v) }},
	// DATABASE_URL implies postgres; INSTORY_DB_DSN comes later and wins.
	{"server.dsn", EnvDatabaseURL, func(c *AppConfig, v string) { c.Server.DSN, c.Server.DBDialect = v, "postgres" }},
	{"server.dsn", EnvDSN, func(c *AppConfig, v string) { c.Server.DSN = v }},
	{"server.files_dir", EnvFilesDir, func(c *AppConfig, v string) { c.Server.FilesDir = v }},
	{"server.public_url", EnvPublicURL, func(c *AppConfig, v string) { c.Server.PublicURL = strings.TrimRight(v, "/") }},
	{"server.auth_secret", EnvAuthSecret, func(c *AppConfig, v string) { c.Server.AuthSecret = v }},
	{"reader.default_mode", EnvReaderMode, func(c *AppConfig, v string) { c.Reader.DefaultMode = strings.ToLower(v) }},
	{"logging.level", EnvLogLevel, func(c *AppConfig, v string) { c.Logging.Level = strings.ToLower(v) }},
	{"logging.format", EnvLogFormat, func(c *AppConfig, v string) { c.Logging.Format = strings.ToLower(v) }},
	{"logging.source", EnvLogSource, func(c *AppConfig, v string) { c.Logging.Source = truthy(v) }},
	{"logging.file", EnvLogFile, func(c *AppConfig, v string) { c.Logging.File = v }},
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// Service/keys for OS keyring.
const (
	keyringService = "InStory"
	keyringToken   = "backend_token"
)

// tokenStore abstracts keyring, so we can stub in tests.
var tokenStore TokenStore = osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// ConfigPath returns the per-user config file path. INSTORY_CONFIG wins.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "InStory")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "InStory")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "instory")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "instory")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file at ConfigPath and returns it together
// with the backend token from the keyring.
func Load() (AppConfig, string, error) {
	path, err := ConfigPath()
	if err != nil {
		return Defaults(), "", err
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return cfg, "", err
	}
	tok, _ := LoadToken()
	return cfg, tok, nil
}

// LoadFile reads path (if present) over the defaults and applies
// environment overrides. A malformed file is an error.
func LoadFile(path string) (AppConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Defaults(), fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.normalize()
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the user config YAML and persists the token into OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := SaveFile(path, cfg); err != nil {
		return err
	}
	if token != "" {
		return SaveToken(token)
	}
	return nil
}

// SaveFile writes cfg as YAML to path, creating its directory.
func SaveFile(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LoadToken reads the CLI token from the OS keyring.
func LoadToken() (string, error) { return tokenStore.Get(keyringService, keyringToken) }

func SaveToken(token string) error {
	if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// DeleteToken forgets the stored token. A missing token is not an error.
func DeleteToken() error {
	if err := tokenStore.Delete(keyringService, keyringToken); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (c *AppConfig) normalize() {
	if c.ConfigVersion == 0 {
		c.ConfigVersion = 1
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.File = strings.TrimSpace(c.Logging.File)
	c.Server.DBDialect = strings.ToLower(strings.TrimSpace(c.Server.DBDialect))
	c.Server.PublicURL = strings.TrimRight(strings.TrimSpace(c.Server.PublicURL), "/")
	c.Reader.DefaultMode = strings.ToLower(strings.TrimSpace(c.Reader.DefaultMode))
}

func applyEnvOverrides(cfg *AppConfig) {
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			o.apply(cfg, v)
		}
	}
}

// Validate reports every invalid setting.
func (c AppConfig) Validate() error {
	var errs error
	switch c.Server.DBDialect {
	case "sqlite", "postgres":
	default:
		errs = multierr.Append(errs, fmt.Errorf("server.db_dialect: unknown dialect %q", c.Server.DBDialect))
	}
	if strings.TrimSpace(c.Server.DSN) == "" {
		errs = multierr.Append(errs, errors.New("server.dsn is required"))
	}
	switch c.Reader.DefaultMode {
	case "focus", "panel-to-panel":
	default:
		errs = multierr.Append(errs, fmt.Errorf("reader.default_mode: unknown mode %q", c.Reader.DefaultMode))
	}
	if c.Server.MaxUploadMB < 0 || c.Server.UploadsPerSecond < 0 {
		errs = multierr.Append(errs, errors.New("server upload limits must be non-negative"))
	}
	if c.Reader.ViewportWidth < 0 || c.Reader.ViewportHeight < 0 {
		errs = multierr.Append(errs, errors.New("reader viewport must be non-negative"))
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = multierr.Append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}
	return errs
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, found := "", false
	for _, o := range overrides {
		if o.key == key && os.Getenv(o.env) != "" {
			name, found = o.env, true
		}
	}
	return name, found
}

// OverrideKeys lists the config keys that environment variables can set,
// in file order.
func OverrideKeys() []string {
	var keys []string
	seen := map[string]bool{}
	for _, o := range overrides {
		if !seen[o.key] {
			seen[o.key] = true
			keys = append(keys, o.key)
		}
	}
	return keys
}

// Timeout returns the backend timeout, falling back to the default.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Backend.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}
