// Package config loads the engine's environment-variable configuration
// described in spec.md §6 using koanf's structs+env providers.
package config

import (
	"fmt"
	"strconv"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config holds every tunable the engine reads at startup.
type Config struct {
	Host          string `koanf:"host"`
	Port          int    `koanf:"port"`
	BlobstorePath string `koanf:"blobstore_path"`
	DatabasePath  string `koanf:"database_path"`
	UploadsPath   string `koanf:"uploads_path"`
	LogLevel      string `koanf:"log_level"`

	// RenderCacheBytes bounds the RenderCache LRU by total encoded bytes.
	RenderCacheBytes int64 `koanf:"render_cache_bytes"`
	// IngestWorkers holds the configured tree-ingest worker count. Nothing in
	// this module reads it; Facade.IngestUploads takes its worker count as an
	// argument.
	IngestWorkers int `koanf:"ingest_workers"`
}

// Defaults returns the configuration baseline seeded before env overlay.
func Defaults() Config {
	return Config{
		Host:             "127.0.0.1",
		Port:             8080,
		BlobstorePath:    "./blobstore",
		DatabasePath:     "./database",
		UploadsPath:      "./uploads",
		LogLevel:         "info",
		RenderCacheBytes: 10 << 20, // 10 MiB, per spec.md §4.G
		IngestWorkers:    4,
	}
}

var envAliases = map[string]string{
	"HOST":               "host",
	"PORT":               "port",
	"BLOBSTORE_PATH":     "blobstore_path",
	"DATABASE_PATH":      "database_path",
	"UPLOADS_PATH":       "uploads_path",
	"LOG_LEVEL":          "log_level",
	"RENDER_CACHE_BYTES": "render_cache_bytes",
	"INGEST_WORKERS":     "ingest_workers",
}

// Load reads the process environment into a Config, starting from Defaults.
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		mapped, ok := envAliases[key]
		if !ok {
			return "", nil
		}
		return mapped, value
	}), nil); err != nil {
		return Config{}, fmt.Errorf("config: load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first configuration error found, if any.
func (c Config) Validate() error {
	if c.BlobstorePath == "" {
		return fmt.Errorf("config: BLOBSTORE_PATH must not be empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("config: DATABASE_PATH must not be empty")
	}
	if c.UploadsPath == "" {
		return fmt.Errorf("config: UPLOADS_PATH must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT out of range: %d", c.Port)
	}
	return nil
}

// Addr formats Host:Port for net.Listen.
func (c Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
