package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is read from an optional YAML file named by CONTRACTSEAL_CONFIG;
// environment variables override file values.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	PostgresDSN string `yaml:"postgres_dsn"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	HashingSecret       string `yaml:"hashing_secret"`
	HashingSecretSource string `yaml:"hashing_secret_source"`

	VaultAddr       string `yaml:"vault_addr"`
	VaultToken      string `yaml:"vault_token"`
	VaultSecretPath string `yaml:"vault_secret_path"`
	VaultSecretKey  string `yaml:"vault_secret_key"`
	// VaultSecretVersion pins a KV v2 version; zero reads the current one.
	VaultSecretVersion int `yaml:"vault_secret_version"`

	GCPProjectID             string `yaml:"gcp_project_id"`
	GCPAccessToken           string `yaml:"gcp_access_token"`
	GCPSecretManagerEndpoint string `yaml:"gcp_secret_manager_endpoint"`
	GCPSecretID              string `yaml:"gcp_secret_id"`

	StorageDriver       string `yaml:"storage_driver"`
	StoragePrimaryRoot  string `yaml:"storage_primary_root"`
	StorageFallbackRoot string `yaml:"storage_fallback_root"`
	StorageIOWorkers    int    `yaml:"storage_io_workers"`

	MinioEndpoint  string `yaml:"minio_endpoint"`
	MinioAccessKey string `yaml:"minio_access_key"`
	MinioSecretKey string `yaml:"minio_secret_key"`
	MinioBucket    string `yaml:"minio_bucket"`
	MinioUseSSL    bool   `yaml:"minio_use_ssl"`

	GCSBucket   string `yaml:"gcs_bucket"`
	GCSEndpoint string `yaml:"gcs_endpoint"`

	RateLimitRequests      int  `yaml:"rate_limit_requests"`
	RateLimitWindowSeconds int  `yaml:"rate_limit_window_seconds"`
	RateLimitFailClosed    bool `yaml:"rate_limit_fail_closed"`
	RateLimitMaxKeys       int  `yaml:"rate_limit_max_keys"`
	// RateLimitRoutes overrides the budget per route, e.g. "shared=30,verify_batch=5/60".
	RateLimitRoutes string `yaml:"rate_limit_routes"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	SigningPolicyPath      string `yaml:"signing_policy_path"`
	AccessTokenTTLHours    int    `yaml:"access_token_ttl_hours"`
	BatchVerifyConcurrency int    `yaml:"batch_verify_concurrency"`
}

const (
	SecretSourceEnv   = "env"
	SecretSourceVault = "vault"
	SecretSourceGCP   = "gcp"

	StorageFS    = "fs"
	StorageMinio = "minio"
	StorageGCS   = "gcs"
)

func Defaults() Config {
	return Config{
		HTTPAddr:               ":8080",
		LogLevel:               "info",
		LogFormat:              "text",
		HashingSecretSource:    SecretSourceEnv,
		VaultSecretKey:         "hashing_secret",
		StorageDriver:          StorageFS,
		StoragePrimaryRoot:     "./data/contracts",
		StorageFallbackRoot:    os.TempDir() + "/contractseal",
		StorageIOWorkers:       8,
		RateLimitRequests:      60,
		RateLimitWindowSeconds: 60,
		RateLimitMaxKeys:       10000,
		AccessTokenTTLHours:    24 * 7,
		BatchVerifyConcurrency: 4,
	}
}

// Load reads the optional config file and applies environment overrides.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONTRACTSEAL_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv ignores any config file.
func FromEnv() Config {
	cfg := Defaults()
	applyEnv(&cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	envString(&cfg.HTTPAddr, "HTTP_ADDR")
	envString(&cfg.PostgresDSN, "POSTGRES_DSN")
	envString(&cfg.LogLevel, "LOG_LEVEL")
	envString(&cfg.LogFormat, "LOG_FORMAT")
	envString(&cfg.HashingSecret, "HASHING_SECRET")
	envString(&cfg.HashingSecretSource, "HASHING_SECRET_SOURCE")
	envString(&cfg.VaultAddr, "VAULT_ADDR")
	envString(&cfg.VaultToken, "VAULT_TOKEN")
	envString(&cfg.VaultSecretPath, "VAULT_SECRET_PATH")
	envString(&cfg.VaultSecretKey, "VAULT_SECRET_KEY")
	envInt(&cfg.VaultSecretVersion, "VAULT_SECRET_VERSION")
	envString(&cfg.GCPProjectID, "GCP_PROJECT_ID")
	envString(&cfg.GCPAccessToken, "GCP_ACCESS_TOKEN")
	envString(&cfg.GCPSecretManagerEndpoint, "GCP_SECRET_MANAGER_ENDPOINT")
	envString(&cfg.GCPSecretID, "GCP_SECRET_ID")
	envString(&cfg.StorageDriver, "STORAGE_DRIVER")
	envString(&cfg.StoragePrimaryRoot, "STORAGE_PRIMARY_ROOT")
	envString(&cfg.StorageFallbackRoot, "STORAGE_FALLBACK_ROOT")
	envInt(&cfg.StorageIOWorkers, "STORAGE_IO_WORKERS")
	envString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	envString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	envString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	envString(&cfg.MinioBucket, "MINIO_BUCKET")
	envBool(&cfg.MinioUseSSL, "MINIO_USE_SSL")
	envString(&cfg.GCSBucket, "GCS_BUCKET")
	envString(&cfg.GCSEndpoint, "GCS_ENDPOINT")
	envInt(&cfg.RateLimitRequests, "RATE_LIMIT_REQUESTS")
	envInt(&cfg.RateLimitWindowSeconds, "RATE_LIMIT_WINDOW_SECONDS")
	envBool(&cfg.RateLimitFailClosed, "RATE_LIMIT_FAIL_CLOSED")
	envInt(&cfg.RateLimitMaxKeys, "RATE_LIMIT_MAX_KEYS")
	envString(&cfg.RateLimitRoutes, "RATE_LIMIT_ROUTES")
	envString(&cfg.RedisAddr, "REDIS_ADDR")
	envString(&cfg.RedisPassword, "REDIS_PASSWORD")
	envInt(&cfg.RedisDB, "REDIS_DB")
	envString(&cfg.SigningPolicyPath, "SIGNING_POLICY_PATH")
	envInt(&cfg.AccessTokenTTLHours, "ACCESS_TOKEN_TTL_HOURS")
	envInt(&cfg.BatchVerifyConcurrency, "BATCH_VERIFY_CONCURRENCY")
}

func (c Config) Validate() error {
	var problems []string
	switch c.HashingSecretSource {
	case SecretSourceEnv, SecretSourceVault, SecretSourceGCP:
	default:
		problems = append(problems, fmt.Sprintf("HASHING_SECRET_SOURCE %q must be env, vault or gcp", c.HashingSecretSource))
	}
	if c.StoragePrimaryRoot == "" {
		problems = append(problems, "STORAGE_PRIMARY_ROOT is required")
	}
	switch c.StorageDriver {
	case StorageFS:
	case StorageMinio:
		if c.MinioEndpoint == "" || c.MinioBucket == "" {
			problems = append(problems, "MINIO_ENDPOINT and MINIO_BUCKET are required for the minio driver")
		}
	case StorageGCS:
		if c.GCSBucket == "" {
			problems = append(problems, "GCS_BUCKET is required for the gcs driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("STORAGE_DRIVER %q must be fs, minio or gcs", c.StorageDriver))
	}
	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

// StorageRoots lists candidate roots in preference order.
func (c Config) StorageRoots() []string {
	roots := []string{c.StoragePrimaryRoot}
	if c.StorageFallbackRoot != "" && c.StorageFallbackRoot != c.StoragePrimaryRoot {
		roots = append(roots, c.StorageFallbackRoot)
	}
	return roots
}

func (c Config) RateLimitWindow() time.Duration {
	if c.RateLimitWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	if c.AccessTokenTTLHours <= 0 {
		return 0
	}
	return time.Duration(c.AccessTokenTTLHours) * time.Hour
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return
	}
	*dst = parsed
}

func envBool(dst *bool, key string) {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		*dst = true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		*dst = false
	}
}
