package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type EngineConfig struct {
	NATSURL            string `yaml:"nats_url"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs"`
}

// RequestTimeout converts the configured seconds into a duration.
func (e EngineConfig) RequestTimeout() time.Duration {
	return time.Duration(e.RequestTimeoutSecs) * time.Second
}

type ImportConfig struct {
	MaxArchiveEntries int   `yaml:"max_archive_entries"`
	MaxArchiveBytes   int64 `yaml:"max_archive_bytes"`
	MaxDocumentBytes  int64 `yaml:"max_document_bytes"`
}

type ReportsConfig struct {
	Directory string `yaml:"directory"`
	FontPath  string `yaml:"font_path"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Imports  ImportConfig   `yaml:"imports"`
	Reports  ReportsConfig  `yaml:"reports"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path: "stigward.db",
		},
		Engine: EngineConfig{
			NATSURL:            "nats://127.0.0.1:4222",
			RequestTimeoutSecs: 10,
		},
		Imports: ImportConfig{
			MaxArchiveEntries: 10000,
			MaxArchiveBytes:   512 << 20,
			MaxDocumentBytes:  64 << 20,
		},
		Reports: ReportsConfig{
			Directory: "./reports",
			FontPath:  "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}
