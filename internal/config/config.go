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
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	MinIO       MinIOConfig       `yaml:"minio"`
	Matching    MatchingConfig    `yaml:"matching"`
	Worker      WorkerConfig      `yaml:"worker"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port    int      `yaml:"port"`
	APIKeys []string `yaml:"api_keys"`
}

type DatabaseConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Name       string `yaml:"name"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	MaxConns   int    `yaml:"max_conns"`
	Migrations bool   `yaml:"migrations"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// MatchingConfig holds the service-wide matching defaults. Calibration
// thresholds and per-run options override them.
type MatchingConfig struct {
	MatchThreshold      float64       `yaml:"match_threshold"`
	OutfitFloor         float64       `yaml:"outfit_floor"`
	AmbiguityGap        float64       `yaml:"ambiguity_gap"`
	EmbeddingFloor      float64       `yaml:"embedding_floor"`
	MinTransit          time.Duration `yaml:"min_transit"`
	MaxCandidateWindow  time.Duration `yaml:"max_candidate_window"`
	MaxCandidates       int           `yaml:"max_candidates"`
	MaxHops             int           `yaml:"max_hops"`
	Cooldown            time.Duration `yaml:"cooldown"`
	InactivityThreshold time.Duration `yaml:"inactivity_threshold"`
	MinChainLength      int           `yaml:"min_chain_length"`
}

type WorkerConfig struct {
	Concurrency          int           `yaml:"concurrency"`
	MatchWorkers         int           `yaml:"match_workers"`
	FetchInitialInterval time.Duration `yaml:"fetch_initial_interval"`
	FetchMaxElapsed      time.Duration `yaml:"fetch_max_elapsed"`
	RunTimeout           time.Duration `yaml:"run_timeout"`
}

type CalibrationConfig struct {
	Source string `yaml:"source"` // postgres or file
	File   string `yaml:"file"`
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

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "visitrack"
	}

	m := &cfg.Matching
	if m.MatchThreshold == 0 {
		m.MatchThreshold = 0.78
	}
	if m.OutfitFloor == 0 {
		m.OutfitFloor = 0.70
	}
	if m.AmbiguityGap == 0 {
		m.AmbiguityGap = 0.04
	}
	if m.EmbeddingFloor == 0 {
		m.EmbeddingFloor = 0.75
	}
	if m.MinTransit == 0 {
		m.MinTransit = time.Second
	}
	if m.MaxCandidateWindow == 0 {
		m.MaxCandidateWindow = 480 * time.Second
	}
	if m.MaxCandidates == 0 {
		m.MaxCandidates = 50
	}
	if m.MaxHops == 0 {
		m.MaxHops = 2
	}
	if m.Cooldown == 0 {
		m.Cooldown = 10 * time.Second
	}
	if m.InactivityThreshold == 0 {
		m.InactivityThreshold = 30 * time.Minute
	}
	if m.MinChainLength == 0 {
		m.MinChainLength = 2
	}

	w := &cfg.Worker
	if w.Concurrency == 0 {
		w.Concurrency = 2
	}
	if w.MatchWorkers == 0 {
		w.MatchWorkers = 8
	}
	if w.FetchInitialInterval == 0 {
		w.FetchInitialInterval = 500 * time.Millisecond
	}
	if w.FetchMaxElapsed == 0 {
		w.FetchMaxElapsed = 2 * time.Minute
	}
	if w.RunTimeout == 0 {
		w.RunTimeout = 15 * time.Minute
	}

	if cfg.Calibration.Source == "" {
		cfg.Calibration.Source = "postgres"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func (c *Config) validate() error {
	switch c.Calibration.Source {
	case "postgres":
	case "file":
		if c.Calibration.File == "" {
			return fmt.Errorf("calibration source file requires calibration.file")
		}
	default:
		return fmt.Errorf("unknown calibration source %q", c.Calibration.Source)
	}
	if c.Matching.MinChainLength < 2 {
		return fmt.Errorf("matching.min_chain_length must be at least 2")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VT_API_KEYS"); v != "" {
		cfg.Server.APIKeys = splitList(v)
	}
	if v := os.Getenv("VT_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("VT_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("VT_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("VT_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("VT_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("VT_DB_MIGRATIONS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Database.Migrations = b
		}
	}
	if v := os.Getenv("VT_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("VT_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("VT_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("VT_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("VT_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("VT_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.MatchThreshold = f
		}
	}
	if v := os.Getenv("VT_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.Concurrency = n
		}
	}
	if v := os.Getenv("VT_CALIBRATION_SOURCE"); v != "" {
		cfg.Calibration.Source = v
	}
	if v := os.Getenv("VT_CALIBRATION_FILE"); v != "" {
		cfg.Calibration.File = v
	}
	if v := os.Getenv("VT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
