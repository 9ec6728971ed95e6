package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Source   SourceConfig   `yaml:"source"`
	Vision   VisionConfig   `yaml:"vision"`
	Indexing IndexingConfig `yaml:"indexing"`
	Search   SearchConfig   `yaml:"search"`
	Sync     SyncConfig     `yaml:"sync"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port          int    `yaml:"port"`
	APIKey        string `yaml:"api_key"`
	MaxUploadSize int64  `yaml:"max_upload_size"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

// SourceConfig points at the S3-compatible storage holding event photo folders.
type SourceConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	Mode               string  `yaml:"mode"` // fast, accurate, or empty for auto
	DetectionThreshold float64 `yaml:"detection_threshold"`
	EmbeddingDim       int     `yaml:"embedding_dim"`
}

type IndexingConfig struct {
	DownloadRetries int           `yaml:"download_retries"`
	DownloadBackoff time.Duration `yaml:"download_backoff"`
}

type SearchConfig struct {
	DefaultTolerance float64 `yaml:"default_tolerance"`
}

type SyncConfig struct {
	MinIntervalMinutes     int `yaml:"min_interval_minutes"`
	MaxIntervalMinutes     int `yaml:"max_interval_minutes"`
	DefaultIntervalMinutes int `yaml:"default_interval_minutes"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = 10 << 20 // 10 MB per selfie
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.EmbeddingDim == 0 {
		cfg.Vision.EmbeddingDim = 512
	}
	if cfg.Indexing.DownloadRetries == 0 {
		cfg.Indexing.DownloadRetries = 3
	}
	if cfg.Indexing.DownloadBackoff == 0 {
		cfg.Indexing.DownloadBackoff = time.Second
	}
	if cfg.Search.DefaultTolerance == 0 {
		cfg.Search.DefaultTolerance = 0.5
	}
	if cfg.Sync.MinIntervalMinutes == 0 {
		cfg.Sync.MinIntervalMinutes = 1
	}
	if cfg.Sync.MaxIntervalMinutes == 0 {
		cfg.Sync.MaxIntervalMinutes = 1440
	}
	if cfg.Sync.DefaultIntervalMinutes == 0 {
		cfg.Sync.DefaultIntervalMinutes = 5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SNAP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SNAP_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("SNAP_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("SNAP_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("SNAP_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("SNAP_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("SNAP_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("SNAP_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("SNAP_SOURCE_ENDPOINT"); v != "" {
		cfg.Source.Endpoint = v
	}
	if v := os.Getenv("SNAP_SOURCE_ACCESS_KEY"); v != "" {
		cfg.Source.AccessKey = v
	}
	if v := os.Getenv("SNAP_SOURCE_SECRET_KEY"); v != "" {
		cfg.Source.SecretKey = v
	}
	if v := os.Getenv("SNAP_SOURCE_BUCKET"); v != "" {
		cfg.Source.Bucket = v
	}
	if v := os.Getenv("SNAP_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("SNAP_VISION_MODE"); v != "" {
		cfg.Vision.Mode = v
	}
}
