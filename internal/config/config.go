/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
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
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are read-only overrides applied at load time.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.
type AppConfig struct {
	ConfigVersion int             `yaml:"config_version"`
	General       GeneralConfig   `yaml:"general"`
	Service       ServiceConfig   `yaml:"service"`
	Server        ServerConfig    `yaml:"server"`
	Generator     GeneratorConfig `yaml:"generator"`
	Export        ExportConfig    `yaml:"export"`
	Storage       StorageConfig   `yaml:"storage"`
	Cache         CacheConfig     `yaml:"cache"`
	Logging       LoggingConfig   `yaml:"logging"`
}

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
}

// ServiceConfig locates the generation service used by the client (CLI and web UI).
// An empty BaseURL means the in-process generator is used.
type ServiceConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	// Token is not stored on disk.
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// StaticDir is served under /static/; images live in StaticDir/images.
	StaticDir string `yaml:"static_dir"`
}

type GeneratorConfig struct {
	BaseURL        string `yaml:"base_url"`
	TextModel      string `yaml:"text_model"`
	ImageModel     string `yaml:"image_model"`
	ImageSize      string `yaml:"image_size"`
	ImageQuality   string `yaml:"image_quality"`
	RateIntervalMs int    `yaml:"rate_interval_ms"`
	Concurrency    int    `yaml:"concurrency"`
	TimeoutMs      int    `yaml:"timeout_ms"`
	// API key is kept in the OS keyring.
}

type ExportConfig struct {
	Title       string `yaml:"title"`
	Width       int    `yaml:"width"`
	Scale       int    `yaml:"scale"`
	SettleMs    int    `yaml:"settle_ms"`
	Rasterizer  string `yaml:"rasterizer"` // "canvas" | "browser"
	BrowserBin  string `yaml:"browser_bin"`
	AllowRemote bool   `yaml:"allow_remote"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // "sqlite" | "pgx"
	DSN    string `yaml:"dsn"`
	Dir    string `yaml:"dir"`
}

type CacheConfig struct {
	Backend       string `yaml:"backend"` // "memory" | "redis"
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTLSeconds    int    `yaml:"ttl_seconds"`
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
		Service:       ServiceConfig{TimeoutMs: 120000},
		Server:        ServerConfig{Addr: ":5000", StaticDir: "static"},
		Generator: GeneratorConfig{
			BaseURL:        "https://api.openai.com/v1",
			TextModel:      "gpt-4",
			ImageModel:     "dall-e-3",
			ImageSize:      "1024x1024",
			ImageQuality:   "standard",
			RateIntervalMs: 1000,
			Concurrency:    3,
			TimeoutMs:      120000,
		},
		Export:  ExportConfig{Title: "My AI Comic Strip", Width: 900, Scale: 2, Rasterizer: "canvas"},
		Storage: StorageConfig{Driver: "sqlite"},
		Cache:   CacheConfig{Backend: "memory", TTLSeconds: 600},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath     = "CS_CONFIG"
	EnvAPIKey         = "CS_API_KEY"
	EnvOpenAIKey      = "OPENAI_API_KEY"
	EnvServiceURL     = "CS_SERVICE_URL"
	EnvServiceTimeout = "CS_SERVICE_TIMEOUT_MS"
	EnvServerAddr     = "CS_ADDR"
	EnvStaticDir      = "CS_STATIC_DIR"
	EnvGeneratorURL   = "CS_GENERATOR_URL"
	EnvTextModel      = "CS_TEXT_MODEL"
	EnvImageModel     = "CS_IMAGE_MODEL"
	EnvExportScale    = "CS_EXPORT_SCALE"
	EnvExportSettleMs = "CS_EXPORT_SETTLE_MS"
	EnvRasterizer     = "CS_RASTERIZER"
	EnvBrowserBin     = "CS_BROWSER_BIN"
	EnvStorageDriver  = "CS_STORAGE_DRIVER"
	EnvStorageDSN     = "CS_STORAGE_DSN"
	EnvCacheBackend   = "CS_CACHE_BACKEND"
	EnvRedisAddr      = "CS_REDIS_ADDR"
	EnvTelemetryOptIn = "CS_TELEMETRY_OPT_IN"
	EnvLogLevel       = "CS_LOG_LEVEL"
	EnvLogFormat      = "CS_LOG_FORMAT"
	EnvLogSource      = "CS_LOG_SOURCE"
	EnvLogFile        = "CS_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService = "comicstrip"
	keyringAPIKey  = "api_key"
)

// tokenStore abstracts the keyring so tests can stub it.
var tokenStore TokenStore = osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error { return keyring.Delete(service, key) }

// ConfigPath returns the per-user config file path, or $CS_CONFIG when set.
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
		base = filepath.Join(base, "comicstrip")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "comicstrip")
	default:
		base = filepath.Join(os.Getenv("HOME"), ".config", "comicstrip")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present) over the defaults and applies
// environment overrides. The API key comes from the environment or the OS keyring
// and is returned separately.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Defaults(), "", fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, "", fmt.Errorf("read %s: %w", path, err)
	}
	normalize(&cfg)
	applyEnvOverrides(&cfg)
	return cfg, APIKey(), nil
}

// APIKey resolves the generation API key: CS_API_KEY, OPENAI_API_KEY, then the keyring.
func APIKey() string {
	for _, name := range []string{EnvAPIKey, EnvOpenAIKey} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	tok, _ := tokenStore.Get(keyringService, keyringAPIKey)
	return tok
}

// SetAPIKey stores the key in the OS keyring; an empty key deletes it.
func SetAPIKey(key string) error {
	if strings.TrimSpace(key) == "" {
		err := tokenStore.Delete(keyringService, keyringAPIKey)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}
	return tokenStore.Set(keyringService, keyringAPIKey, strings.TrimSpace(key))
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// normalize lower-cases enum-like fields and fills zero numbers back with defaults.
func normalize(cfg *AppConfig) {
	d := Defaults()
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	cfg.Export.Rasterizer = strings.ToLower(strings.TrimSpace(cfg.Export.Rasterizer))
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = d.Logging.Format
	}
	if cfg.Export.Rasterizer == "" {
		cfg.Export.Rasterizer = d.Export.Rasterizer
	}
	if cfg.Export.Width <= 0 {
		cfg.Export.Width = d.Export.Width
	}
	if cfg.Export.Scale <= 0 {
		cfg.Export.Scale = d.Export.Scale
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = d.Storage.Driver
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = d.Cache.Backend
	}
	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = d.Cache.TTLSeconds
	}
	if cfg.Service.TimeoutMs <= 0 {
		cfg.Service.TimeoutMs = d.Service.TimeoutMs
	}
	if cfg.Generator.TimeoutMs <= 0 {
		cfg.Generator.TimeoutMs = d.Generator.TimeoutMs
	}
}

type envBinding struct {
	name  string
	key   string
	apply func(cfg *AppConfig, v string)
}

func parseBool(v string) bool {
	lv := strings.ToLower(strings.TrimSpace(v))
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func setInt(dst *int) func(*AppConfig, string) {
	return func(_ *AppConfig, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func bindings(cfg *AppConfig) []envBinding {
	return []envBinding{
		{EnvServiceURL, "service.base_url", func(c *AppConfig, v string) { c.Service.BaseURL = v }},
		{EnvServiceTimeout, "service.timeout_ms", setInt(&cfg.Service.TimeoutMs)},
		{EnvServerAddr, "server.addr", func(c *AppConfig, v string) { c.Server.Addr = v }},
		{EnvStaticDir, "server.static_dir", func(c *AppConfig, v string) { c.Server.StaticDir = v }},
		{EnvGeneratorURL, "generator.base_url", func(c *AppConfig, v string) { c.Generator.BaseURL = v }},
		{EnvTextModel, "generator.text_model", func(c *AppConfig, v string) { c.Generator.TextModel = v }},
		{EnvImageModel, "generator.image_model", func(c *AppConfig, v string) { c.Generator.ImageModel = v }},
		{EnvExportScale, "export.scale", setInt(&cfg.Export.Scale)},
		{EnvExportSettleMs, "export.settle_ms", setInt(&cfg.Export.SettleMs)},
		{EnvRasterizer, "export.rasterizer", func(c *AppConfig, v string) { c.Export.Rasterizer = strings.ToLower(v) }},
		{EnvBrowserBin, "export.browser_bin", func(c *AppConfig, v string) { c.Export.BrowserBin = v }},
		{EnvStorageDriver, "storage.driver", func(c *AppConfig, v string) { c.Storage.Driver = strings.ToLower(v) }},
		{EnvStorageDSN, "storage.dsn", func(c *AppConfig, v string) { c.Storage.DSN = v }},
		{EnvCacheBackend, "cache.backend", func(c *AppConfig, v string) { c.Cache.Backend = strings.ToLower(v) }},
		{EnvRedisAddr, "cache.redis_addr", func(c *AppConfig, v string) { c.Cache.RedisAddr = v }},
		{EnvTelemetryOptIn, "general.telemetry_opt_in", func(c *AppConfig, v string) { c.General.TelemetryOptIn = parseBool(v) }},
		{EnvLogLevel, "logging.level", func(c *AppConfig, v string) { c.Logging.Level = strings.ToLower(v) }},
		{EnvLogFormat, "logging.format", func(c *AppConfig, v string) { c.Logging.Format = strings.ToLower(v) }},
		{EnvLogSource, "logging.source", func(c *AppConfig, v string) { c.Logging.Source = parseBool(v) }},
		{EnvLogFile, "logging.file", func(c *AppConfig, v string) { c.Logging.File = v }},
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	for _, b := range bindings(cfg) {
		if v := strings.TrimSpace(os.Getenv(b.name)); v != "" {
			b.apply(cfg, v)
		}
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	var scratch AppConfig
	for _, b := range bindings(&scratch) {
		if b.key == key && os.Getenv(b.name) != "" {
			return b.name, true
		}
	}
	return "", false
}

// ServiceTimeout returns the client timeout.
func (c AppConfig) ServiceTimeout() time.Duration {
	return time.Duration(c.Service.TimeoutMs) * time.Millisecond
}

// CacheTTL returns the artifact cache TTL.
func (c AppConfig) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// ImagesDir is where generated panel images are written and served from.
func (c AppConfig) ImagesDir() string {
	return filepath.Join(c.Server.StaticDir, "images")
}

// StorageDir returns the SQLite ledger directory, defaulting next to the config file.
func (c AppConfig) StorageDir() string {
	if strings.TrimSpace(c.Storage.Dir) != "" {
		return c.Storage.Dir
	}
	if p, err := ConfigPath(); err == nil {
		return filepath.Dir(p)
	}
	return "."
}
