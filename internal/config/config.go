package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RedriveMode string

const (
	RedriveEvent   RedriveMode = "event"
	RedriveCommand RedriveMode = "command"
	RedriveNone    RedriveMode = "none"
)

func ParseRedriveMode(s string) (RedriveMode, error) {
	switch m := RedriveMode(strings.ToLower(strings.TrimSpace(s))); m {
	case RedriveEvent, RedriveCommand, RedriveNone:
		return m, nil
	case "":
		return RedriveEvent, nil
	default:
		return "", fmt.Errorf("unknown redrive mode %q", s)
	}
}

type ServerConfig struct {
	Addr             string        `yaml:"addr"`
	DataDir          string        `yaml:"data_dir"`
	TickRate         int           `yaml:"tick_rate"`
	StartWeek        int           `yaml:"start_week"`
	OrgCount         int           `yaml:"org_count"`
	Redrive          RedriveMode   `yaml:"redrive"`
	ClientQueue      int           `yaml:"client_queue"`
	CommandQueue     int           `yaml:"command_queue"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// MetadataBackend is "file", "postgres" or "http".
	MetadataBackend string        `yaml:"metadata_backend"`
	MetadataURL     string        `yaml:"metadata_url"`
	MetadataTimeout time.Duration `yaml:"metadata_timeout"`
	DatabaseURL     string        `yaml:"database_url"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

type MetaConfig struct {
	Addr        string `yaml:"addr"`
	Backend     string `yaml:"backend"`
	DatabaseURL string `yaml:"database_url"`
	DataDir     string `yaml:"data_dir"`
	LogLevel    string `yaml:"log_level"`
}

type ClientConfig struct {
	ServerAddr string `yaml:"server_addr"`
}

// LoadServer reads .env, then the environment, then the YAML file named by
// CORPSIM_CONFIG, each layer overriding the previous one.
func LoadServer() (ServerConfig, error) {
	_ = godotenv.Load(".env")

	cfg := ServerConfig{
		Addr:             envDefault("CORPSIM_ADDR", ":4000"),
		DataDir:          envDefault("CORPSIM_DATA_DIR", "./data"),
		TickRate:         envIntDefault("CORPSIM_TICK_RATE", 128),
		StartWeek:        envIntDefault("CORPSIM_START_WEEK", 0),
		OrgCount:         envIntDefault("CORPSIM_ORG_COUNT", 7),
		Redrive:          RedriveMode(envDefault("CORPSIM_REDRIVE", string(RedriveEvent))),
		ClientQueue:      envIntDefault("CORPSIM_CLIENT_QUEUE", 64),
		CommandQueue:     envIntDefault("CORPSIM_COMMAND_QUEUE", 256),
		HandshakeTimeout: envDurationDefault("CORPSIM_HANDSHAKE_TIMEOUT", 5*time.Second),
		MetadataBackend:  envDefault("CORPSIM_METADATA_BACKEND", "file"),
		MetadataURL:      strings.TrimRight(envDefault("CORPSIM_METADATA_URL", "http://localhost:8080"), "/"),
		MetadataTimeout:  envDurationDefault("CORPSIM_METADATA_TIMEOUT", 5*time.Second),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MetricsAddr:      envDefault("CORPSIM_METRICS_ADDR", ""),
		LogLevel:         envDefault("CORPSIM_LOG_LEVEL", "info"),
	}
	if err := loadFile(os.Getenv("CORPSIM_CONFIG"), &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c ServerConfig) Validate() error {
	if _, err := ParseRedriveMode(string(c.Redrive)); err != nil {
		return err
	}
	if c.TickRate <= 0 {
		return fmt.Errorf("tick rate must be positive, got %d", c.TickRate)
	}
	if c.StartWeek < 0 || c.StartWeek > 0xffff {
		return fmt.Errorf("start week %d out of range", c.StartWeek)
	}
	if c.OrgCount < 0 {
		return fmt.Errorf("org count must not be negative, got %d", c.OrgCount)
	}
	if c.ClientQueue <= 0 || c.CommandQueue <= 0 {
		return fmt.Errorf("queue sizes must be positive")
	}
	switch c.MetadataBackend {
	case "file":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres metadata backend")
		}
	case "http":
		if c.MetadataURL == "" {
			return fmt.Errorf("CORPSIM_METADATA_URL is required for the http metadata backend")
		}
	default:
		return fmt.Errorf("unknown metadata backend %q", c.MetadataBackend)
	}
	return nil
}

// TickEvery is the engine tick period.
func (c ServerConfig) TickEvery() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

func LoadMeta() (MetaConfig, error) {
	_ = godotenv.Load(".env")

	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("CORPSIM_META_ADDR", ":8080")
	}

	cfg := MetaConfig{
		Addr:        addr,
		Backend:     envDefault("CORPSIM_META_BACKEND", "file"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DataDir:     envDefault("CORPSIM_DATA_DIR", "./data"),
		LogLevel:    envDefault("CORPSIM_LOG_LEVEL", "info"),
	}
	if err := loadFile(os.Getenv("CORPSIM_META_CONFIG"), &cfg); err != nil {
		return cfg, err
	}
	switch cfg.Backend {
	case "file":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL is required")
		}
	default:
		return cfg, fmt.Errorf("unknown metadata backend %q", cfg.Backend)
	}
	return cfg, nil
}

func LoadClient() ClientConfig {
	_ = godotenv.Load(".env")
	return ClientConfig{
		ServerAddr: envDefault("CORPSIM_SERVER_ADDR", "127.0.0.1:4000"),
	}
}

// ParseLevel maps a level name to slog; unknown names fall back to info.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func loadFile(path string, dst any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
