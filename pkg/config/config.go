// Package config loads service configuration from a YAML file, an optional
// .env file and environment variables, in that order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port         string        `yaml:"port"`
	CORSOrigin   string        `yaml:"cors_origin"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// Timezone is used to read order timestamps without a zone and to resolve
	// relative dates such as "today".
	Timezone string `yaml:"timezone"`
}

// OllamaConfig configures the embedding and answer service.
type OllamaConfig struct {
	URL           string        `yaml:"url"`
	EmbedModel    string        `yaml:"embed_model"`
	ChatModel     string        `yaml:"chat_model"`
	Timeout       time.Duration `yaml:"timeout"`
	Temperature   float64       `yaml:"temperature"`
	Rate          float64       `yaml:"rate"`
	Burst         int           `yaml:"burst"`
	Retries       int           `yaml:"retries"`
	FailThreshold int           `yaml:"fail_threshold"`
}

// IndexConfig configures knowledge base construction and search.
type IndexConfig struct {
	// Dimension is the embedding dimension; 0 takes it from the model.
	Dimension  int `yaml:"dimension"`
	ChunkSize  int `yaml:"chunk_size"`
	TopK       int `yaml:"top_k"`
	MaxMatches int `yaml:"max_matches"`
	Workers    int `yaml:"workers"`
}

// NATSConfig configures refresh messaging and NATS queries. An empty URL
// disables both.
type NATSConfig struct {
	URL              string `yaml:"url"`
	RefreshSubject   string `yaml:"refresh_subject"`
	RefreshedSubject string `yaml:"refreshed_subject"`
	QuerySubject     string `yaml:"query_subject"`
}

// DataConfig points at the record files for each domain.
type DataConfig struct {
	OrdersPath   string `yaml:"orders_path"`
	VehiclesPath string `yaml:"vehicles_path"`
}

// MetricsConfig configures the Prometheus endpoint. An empty port serves
// /metrics on the API server itself.
type MetricsConfig struct {
	Port string `yaml:"port"`
}

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Ollama  OllamaConfig  `yaml:"ollama"`
	Index   IndexConfig   `yaml:"index"`
	NATS    NATSConfig    `yaml:"nats"`
	Data    DataConfig    `yaml:"data"`
	Metrics MetricsConfig `yaml:"metrics"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			CORSOrigin:   "*",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 120 * time.Second,
			Timezone:     "Local",
		},
		Ollama: OllamaConfig{
			URL:           "http://localhost:11434",
			EmbedModel:    "nomic-embed-text",
			ChatModel:     "llama3.1:8b",
			Timeout:       60 * time.Second,
			Temperature:   0.3,
			Rate:          20,
			Burst:         8,
			Retries:       3,
			FailThreshold: 5,
		},
		Index: IndexConfig{
			ChunkSize:  100,
			TopK:       3,
			MaxMatches: 5,
			Workers:    4,
		},
		NATS: NATSConfig{
			RefreshSubject:   "fleetrag.refresh",
			RefreshedSubject: "fleetrag.refreshed",
			QuerySubject:     "fleetrag.query",
		},
		Data: DataConfig{
			OrdersPath:   "data/orders.json",
			VehiclesPath: "data/vehicles.json",
		},
		LogLevel: "info",
	}
}

// Load reads path over the defaults, then applies .env and environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Index.Dimension < 0 {
		errs = append(errs, fmt.Errorf("index.dimension must not be negative, got %d", c.Index.Dimension))
	}
	if c.Index.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("index.chunk_size must be positive, got %d", c.Index.ChunkSize))
	}
	if c.Index.TopK <= 0 {
		errs = append(errs, fmt.Errorf("index.top_k must be positive, got %d", c.Index.TopK))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Metrics.Port != "" && c.Metrics.Port == c.Server.Port {
		errs = append(errs, fmt.Errorf("metrics.port must differ from server.port %s", c.Server.Port))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Location resolves Server.Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Server.Timezone == "" || c.Server.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return nil, fmt.Errorf("server.timezone: %w", err)
	}
	return loc, nil
}

// SlogLevel parses LogLevel, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func applyEnv(c *Config) error {
	c.Server.Port = envOr("PORT", c.Server.Port)
	c.Server.CORSOrigin = envOr("CORS_ORIGIN", c.Server.CORSOrigin)
	c.Server.Timezone = envOr("TZ_NAME", c.Server.Timezone)
	c.Ollama.URL = envOr("OLLAMA_URL", c.Ollama.URL)
	c.Ollama.EmbedModel = envOr("EMBED_MODEL", c.Ollama.EmbedModel)
	c.Ollama.ChatModel = envOr("CHAT_MODEL", c.Ollama.ChatModel)
	c.NATS.URL = envOr("NATS_URL", c.NATS.URL)
	c.Data.OrdersPath = envOr("ORDERS_PATH", c.Data.OrdersPath)
	c.Data.VehiclesPath = envOr("VEHICLES_PATH", c.Data.VehiclesPath)
	c.Metrics.Port = envOr("METRICS_PORT", c.Metrics.Port)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)

	var err error
	if c.Index.Dimension, err = envInt("INDEX_DIMENSION", c.Index.Dimension); err != nil {
		return err
	}
	if c.Index.TopK, err = envInt("TOP_K", c.Index.TopK); err != nil {
		return err
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
