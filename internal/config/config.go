package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Vision   VisionConfig   `yaml:"vision"`
	Matching MatchingConfig `yaml:"matching"`
	Cache    CacheConfig    `yaml:"cache"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Name       string `yaml:"name"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	MaxConns   int    `yaml:"max_conns"`
	SQLitePath string `yaml:"sqlite_path"`
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

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	ONNXLib            string  `yaml:"onnx_lib"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	EmbeddingDim       int     `yaml:"embedding_dim"`
	WorkerCount        int     `yaml:"worker_count"`
	MaxFaces           int     `yaml:"max_faces"`
	InputSize          int     `yaml:"input_size"`
}

type MatchingConfig struct {
	MatchThreshold     float64       `yaml:"match_threshold"`
	DuplicateThreshold float64       `yaml:"duplicate_threshold"`
	MatchTimeout       time.Duration `yaml:"match_timeout"`
	DedupTimeout       time.Duration `yaml:"dedup_timeout"`
	Grouping           string        `yaml:"grouping"`
	HashDuplicates     *bool         `yaml:"hash_duplicates"`
}

// HashDuplicatesEnabled defaults to true when unset.
func (m MatchingConfig) HashDuplicatesEnabled() bool {
	return m.HashDuplicates == nil || *m.HashDuplicates
}

// Cache backends.
const (
	CacheLRU  = "lru"
	CacheNATS = "nats"
	CacheNone = "none"
)

type CacheConfig struct {
	Backend      string        `yaml:"backend"`
	Size         int           `yaml:"size"`
	EmbeddingTTL time.Duration `yaml:"embedding_ttl"`
	MatchTTL     time.Duration `yaml:"match_ttl"`
}

type StorageConfig struct {
	ChunkSize           int           `yaml:"chunk_size"`
	OrphanSweepInterval time.Duration `yaml:"orphan_sweep_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from an optional YAML file, loads a .env file if one is
// present, and applies FF_* environment overrides and defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 32 << 20
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "facefind.db"
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "facefind"
	}
	if cfg.Vision.WorkerCount == 0 {
		cfg.Vision.WorkerCount = 4
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.EmbeddingDim == 0 {
		cfg.Vision.EmbeddingDim = 512
	}
	if cfg.Vision.MaxFaces == 0 {
		cfg.Vision.MaxFaces = 64
	}
	if cfg.Vision.InputSize == 0 {
		cfg.Vision.InputSize = 640
	}
	if cfg.Matching.MatchThreshold == 0 {
		cfg.Matching.MatchThreshold = 0.6
	}
	if cfg.Matching.DuplicateThreshold == 0 {
		cfg.Matching.DuplicateThreshold = 0.95
	}
	if cfg.Matching.MatchTimeout == 0 {
		cfg.Matching.MatchTimeout = 10 * time.Second
	}
	if cfg.Matching.DedupTimeout == 0 {
		cfg.Matching.DedupTimeout = 60 * time.Second
	}
	if cfg.Matching.Grouping == "" {
		cfg.Matching.Grouping = "pairwise"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = CacheLRU
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 4096
	}
	if cfg.Cache.EmbeddingTTL == 0 {
		cfg.Cache.EmbeddingTTL = time.Hour
	}
	if cfg.Cache.MatchTTL == 0 {
		cfg.Cache.MatchTTL = 5 * time.Minute
	}
	if cfg.Storage.ChunkSize == 0 {
		cfg.Storage.ChunkSize = 512 << 10
	}
	if cfg.Storage.OrphanSweepInterval == 0 {
		cfg.Storage.OrphanSweepInterval = time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver))
	}
	switch c.Cache.Backend {
	case CacheLRU, CacheNATS, CacheNone:
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	switch c.Matching.Grouping {
	case "pairwise", "cluster":
	default:
		errs = append(errs, fmt.Errorf("matching.grouping: unknown mode %q", c.Matching.Grouping))
	}
	if c.Matching.MatchThreshold < -1 || c.Matching.MatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("matching.match_threshold: %v outside [-1,1]", c.Matching.MatchThreshold))
	}
	if c.Matching.DuplicateThreshold < -1 || c.Matching.DuplicateThreshold > 1 {
		errs = append(errs, fmt.Errorf("matching.duplicate_threshold: %v outside [-1,1]", c.Matching.DuplicateThreshold))
	}
	if c.Vision.EmbeddingDim < 0 {
		errs = append(errs, fmt.Errorf("vision.embedding_dim: must not be negative"))
	}
	if c.Storage.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("storage.chunk_size: must not be negative"))
	}
	return errors.Join(errs...)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FF_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FF_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FF_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("FF_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FF_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FF_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FF_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FF_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FF_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("FF_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FF_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FF_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FF_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FF_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FF_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FF_ONNX_LIB"); v != "" {
		cfg.Vision.ONNXLib = v
	}
	if v := os.Getenv("FF_VISION_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vision.WorkerCount = n
		}
	}
	if v := os.Getenv("FF_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.MatchThreshold = f
		}
	}
	if v := os.Getenv("FF_DUPLICATE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.DuplicateThreshold = f
		}
	}
	if v := os.Getenv("FF_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("FF_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
