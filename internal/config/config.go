// Package config handles loading and parsing of SDRVault configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sverr "github.com/sdrvault/sdrvault/internal/errors"
)

// Storage backend names accepted in storage.backend.
const (
	BackendS3     = "s3"
	BackendGCS    = "gcs"
	BackendAzure  = "azure"
	BackendSQLite = "sqlite"
	BackendLocal  = "local"
	BackendMemory = "memory"
)

// Config is the top-level configuration for SDRVault.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Storage       StorageConfig       `yaml:"storage"`
	Staging       StagingConfig       `yaml:"staging"`
	Observability ObservabilityConfig `yaml:"observability"`

	// Legacy is the flat S3_STORAGE section used by older deployments. When
	// present it is folded into Storage.S3 by Load.
	Legacy *LegacyS3Config `yaml:"S3_STORAGE,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// ShutdownTimeout is the graceful shutdown timeout in seconds.
	ShutdownTimeout int `yaml:"shutdown_timeout"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig selects and configures the object store holding recordings.
type StorageConfig struct {
	// Backend is one of "s3", "gcs", "azure", "sqlite", "local", "memory".
	Backend string       `yaml:"backend"`
	S3      S3Config     `yaml:"s3"`
	GCS     GCSConfig    `yaml:"gcs"`
	Azure   AzureConfig  `yaml:"azure"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
	Local   LocalConfig  `yaml:"local"`
}

// S3Config holds connection settings for an S3-compatible endpoint.
type S3Config struct {
	EndpointURL     string `yaml:"endpoint_url"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	BucketName      string `yaml:"bucket_name"`
	Region          string `yaml:"region"`
	// UsePathStyle forces path-style addressing (MinIO, Ceph RGW).
	UsePathStyle bool `yaml:"use_path_style"`
	// InsecureSkipVerify disables TLS certificate verification for on-prem
	// endpoints with self-signed certificates.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// GCSConfig holds Google Cloud Storage settings. Credentials come from
// Application Default Credentials.
type GCSConfig struct {
	Bucket  string `yaml:"bucket"`
	Project string `yaml:"project"`
}

// AzureConfig holds Azure Blob Storage settings.
type AzureConfig struct {
	Container string `yaml:"container"`
	// AccountURL is https://{account}.blob.core.windows.net. Ignored when
	// ConnectionString is set.
	AccountURL       string `yaml:"account_url"`
	ConnectionString string `yaml:"connection_string"`
}

// SQLiteConfig holds settings for the embedded SQLite object store.
type SQLiteConfig struct {
	Path   string `yaml:"path"`
	Bucket string `yaml:"bucket"`
}

// LocalConfig holds settings for the local directory object store.
type LocalConfig struct {
	RootDir string `yaml:"root_dir"`
	Bucket  string `yaml:"bucket"`
}

// StagingConfig holds workspace and transcoding settings.
type StagingConfig struct {
	// RootDir is the directory whose direct children are workspaces.
	RootDir string `yaml:"root_dir"`
	// Decoder is the external decode tool: "oggdec" or "ffmpeg".
	Decoder string `yaml:"decoder"`
	// DecoderPath overrides the decoder executable path.
	DecoderPath string `yaml:"decoder_path"`
	// MaxAge, when positive, removes workspaces older than this at startup.
	MaxAge time.Duration `yaml:"max_age"`
}

// ObservabilityConfig toggles the /metrics and /health endpoints.
type ObservabilityConfig struct {
	Metrics     bool `yaml:"metrics"`
	HealthCheck bool `yaml:"health_check"`
}

// LegacyS3Config mirrors the original flat S3_STORAGE section.
type LegacyS3Config struct {
	EndpointURL     string `yaml:"S3_endpoint_url"`
	AccessKeyID     string `yaml:"S3_access_key_id"`
	SecretAccessKey string `yaml:"S3_secret_access_key"`
	BucketName      string `yaml:"S3_bucket_name"`
}

// Load reads a YAML configuration file from the given path and returns
// a parsed Config. It applies sensible defaults for unset values.
// If the primary path fails, it falls back to sdrvault.example.yaml
// in the same directory or parent directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		fallbackPaths := []string{
			filepath.Join(filepath.Dir(path), "sdrvault.example.yaml"),
			filepath.Join(filepath.Dir(path), "..", "sdrvault.example.yaml"),
		}
		var fallbackErr error
		for _, fp := range fallbackPaths {
			data, fallbackErr = os.ReadFile(fp)
			if fallbackErr == nil {
				break
			}
		}
		if fallbackErr != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes, folds in the legacy section and
// applies defaults. It does not validate; see Validate.
func Parse(data []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyLegacy(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// Validate checks that every field required by the selected storage backend
// is present. It returns an ErrConfiguration naming all missing fields.
func (c *Config) Validate() error {
	var missing []string
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	switch c.Storage.Backend {
	case BackendS3:
		require(c.Storage.S3.EndpointURL, "storage.s3.endpoint_url")
		require(c.Storage.S3.AccessKeyID, "storage.s3.access_key_id")
		require(c.Storage.S3.SecretAccessKey, "storage.s3.secret_access_key")
		require(c.Storage.S3.BucketName, "storage.s3.bucket_name")
	case BackendGCS:
		require(c.Storage.GCS.Bucket, "storage.gcs.bucket")
	case BackendAzure:
		require(c.Storage.Azure.Container, "storage.azure.container")
		if c.Storage.Azure.ConnectionString == "" {
			require(c.Storage.Azure.AccountURL, "storage.azure.account_url")
		}
	case BackendSQLite:
		require(c.Storage.SQLite.Path, "storage.sqlite.path")
		require(c.Storage.SQLite.Bucket, "storage.sqlite.bucket")
	case BackendLocal:
		require(c.Storage.Local.RootDir, "storage.local.root_dir")
		require(c.Storage.Local.Bucket, "storage.local.bucket")
	case BackendMemory:
	default:
		return sverr.ErrConfiguration.WithMessage("unknown storage backend %q", c.Storage.Backend)
	}
	require(c.Staging.RootDir, "staging.root_dir")

	if len(missing) > 0 {
		return sverr.ErrConfiguration.WithMessage("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Bucket returns the bucket (or container) name of the selected backend.
func (c *Config) Bucket() string {
	switch c.Storage.Backend {
	case BackendS3:
		return c.Storage.S3.BucketName
	case BackendGCS:
		return c.Storage.GCS.Bucket
	case BackendAzure:
		return c.Storage.Azure.Container
	case BackendSQLite:
		return c.Storage.SQLite.Bucket
	case BackendLocal:
		return c.Storage.Local.Bucket
	default:
		return "recordings"
	}
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ShutdownTimeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Backend: BackendS3,
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Staging: StagingConfig{
			RootDir: "./data/staging",
			Decoder: "oggdec",
		},
		Observability: ObservabilityConfig{
			Metrics:     true,
			HealthCheck: true,
		},
	}
}

// applyLegacy folds a populated S3_STORAGE section into Storage.S3. Fields
// already set in the storage section win.
func applyLegacy(cfg *Config) {
	if cfg.Legacy == nil {
		return
	}
	s3 := &cfg.Storage.S3
	if s3.EndpointURL == "" {
		s3.EndpointURL = cfg.Legacy.EndpointURL
	}
	if s3.AccessKeyID == "" {
		s3.AccessKeyID = cfg.Legacy.AccessKeyID
	}
	if s3.SecretAccessKey == "" {
		s3.SecretAccessKey = cfg.Legacy.SecretAccessKey
	}
	if s3.BucketName == "" {
		s3.BucketName = cfg.Legacy.BucketName
	}
	cfg.Storage.Backend = BackendS3
	// The legacy deployments talk to on-prem endpoints with self-signed
	// certificates and path-style buckets.
	s3.InsecureSkipVerify = true
	s3.UsePathStyle = true
}

// applyDefaults fills in any fields that are still at their zero value
// after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendS3
	}
	if cfg.Storage.S3.Region == "" {
		cfg.Storage.S3.Region = "us-east-1"
	}
	if cfg.Staging.RootDir == "" {
		cfg.Staging.RootDir = "./data/staging"
	}
	if cfg.Staging.Decoder == "" {
		cfg.Staging.Decoder = "oggdec"
	}
}
