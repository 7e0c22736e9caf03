package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Upload  UploadConfig  `yaml:"upload"`
	Cache   CacheConfig   `yaml:"cache"`
	Redis   RedisConfig   `yaml:"redis"`
	NATS    NATSConfig    `yaml:"nats"`
	MinIO   MinIOConfig   `yaml:"minio"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	// PublicURL prefixes preview URIs handed to the rendering layer.
	PublicURL string `yaml:"public_url"`
}

type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// PredictTimeout bounds the remote analysis call, which is much slower than reads.
	PredictTimeout time.Duration     `yaml:"predict_timeout"`
	CSRFToken      string            `yaml:"csrf_token"`
	Headers        map[string]string `yaml:"headers"`
}

type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
	// MediaDir enables selecting videos by path; only files inside it are
	// accepted. Empty disables path selection.
	MediaDir string `yaml:"media_dir"`
}

type CacheConfig struct {
	Store               string        `yaml:"store"` // memory, redis
	HistoryStaleTime    time.Duration `yaml:"history_stale_time"`
	TimelineStaleTime   time.Duration `yaml:"timeline_stale_time"`
	RefetchOnInvalidate bool          `yaml:"refetch_on_invalidate"`
}

type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether downloaded reports should be archived.
func (m MinIOConfig) Enabled() bool {
	return m.Endpoint != "" && m.Bucket != ""
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// A missing file is not an error: defaults and environment still apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	switch c.Cache.Store {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for cache.store=redis")
		}
	default:
		return fmt.Errorf("unknown cache.store %q", c.Cache.Store)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	cfg.Server.PublicURL = strings.TrimRight(cfg.Server.PublicURL, "/")
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}
	if cfg.Backend.PredictTimeout == 0 {
		cfg.Backend.PredictTimeout = 5 * time.Minute
	}
	if cfg.Upload.MaxBytes == 0 {
		cfg.Upload.MaxBytes = 100 * 1024 * 1024
	}
	if cfg.Cache.Store == "" {
		cfg.Cache.Store = "memory"
	}
	if cfg.Cache.HistoryStaleTime == 0 {
		cfg.Cache.HistoryStaleTime = 30 * time.Second
	}
	if cfg.Cache.TimelineStaleTime == 0 {
		cfg.Cache.TimelineStaleTime = time.Minute
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "oceanlens:cache:"
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = 15 * time.Minute
	}
	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "oceanlens.cache.invalidate"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OCEAN_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("OCEAN_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("OCEAN_PUBLIC_URL"); v != "" {
		cfg.Server.PublicURL = v
	}
	if v := os.Getenv("OCEAN_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("OCEAN_BACKEND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Backend.Timeout = d
		}
	}
	if v := os.Getenv("OCEAN_CSRF_TOKEN"); v != "" {
		cfg.Backend.CSRFToken = v
	}
	if v := os.Getenv("OCEAN_UPLOAD_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Upload.MaxBytes = n
		}
	}
	if v := os.Getenv("OCEAN_MEDIA_DIR"); v != "" {
		cfg.Upload.MediaDir = v
	}
	if v := os.Getenv("OCEAN_CACHE_STORE"); v != "" {
		cfg.Cache.Store = v
	}
	if v := os.Getenv("OCEAN_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("OCEAN_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("OCEAN_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("OCEAN_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("OCEAN_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("OCEAN_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("OCEAN_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("OCEAN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
