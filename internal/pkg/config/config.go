// Package config loads steelflow settings from a YAML file and STEELFLOW_ environment variables.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "steelflow.yaml"

const envPrefix = "STEELFLOW_"

type Config struct {
	Service   ServiceConfig   `koanf:"service"`
	Log       LogConfig       `koanf:"log"`
	Journal   JournalConfig   `koanf:"journal"`
	Export    ExportConfig    `koanf:"export"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServiceConfig addresses the remote design service.
type ServiceConfig struct {
	BaseURL      string        `koanf:"base_url"` // includes the /api prefix
	Token        string        `koanf:"token"`
	Timeout      time.Duration `koanf:"timeout"`
	RemoteReject bool          `koanf:"remote_reject"` // service implements POST /redlines/{id}/reject
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

type JournalConfig struct {
	Driver string `koanf:"driver"` // none, memory, sqlite, postgres
	DSN    string `koanf:"dsn"`
}

type ExportConfig struct {
	Sink  string      `koanf:"sink"` // dir, minio
	Dir   string      `koanf:"dir"`
	Minio MinioConfig `koanf:"minio"`
}

type MinioConfig struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	UseSSL    bool   `koanf:"use_ssl"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"service.base_url":       "http://localhost:8001/api",
	"service.timeout":        "120s",
	"log.level":              "info",
	"log.format":             "text",
	"journal.driver":         "none",
	"export.sink":            "dir",
	"export.dir":             ".",
	"telemetry.service_name": "steelflow",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads DefaultPath when present, then applies environment overrides.
func Load() (*Config, error) {
	return LoadFile(DefaultPath)
}

// LoadFile reads the YAML file at path, then applies environment overrides.
// A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
		}
	}

	// Environment variables override file config
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Service.Token = substituteEnvVars(cfg.Service.Token)
	cfg.Journal.DSN = substituteEnvVars(cfg.Journal.DSN)
	cfg.Export.Minio.AccessKey = substituteEnvVars(cfg.Export.Minio.AccessKey)
	cfg.Export.Minio.SecretKey = substituteEnvVars(cfg.Export.Minio.SecretKey)

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
