package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPPort        = "8080"
	defaultStoreDriver     = "postgres"
	defaultSQLiteDSN       = "./data/signatures.db"
	defaultTemporalAddress = "localhost:7233"
	defaultTemporalNS      = "default"
	defaultTaskQueue       = "signature-flow-task-queue"
	defaultMinioEndpoint   = "localhost:9000"
	defaultArchiveBucket   = "signed-documents"
	defaultInboxBucket     = "order-changes"
	defaultWorkflowPrefix  = "signature-flow"
	defaultMaxBodyBytes    = 1 << 20
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMySQL    = "mysql"
)

type Config struct {
	HTTPPort           string `yaml:"http_port"`
	StoreDriver        string `yaml:"store_driver"`
	PostgresDSN        string `yaml:"postgres_dsn"`
	DatabaseDSN        string `yaml:"database_dsn"`
	TemporalAddress    string `yaml:"temporal_address"`
	TemporalNamespace  string `yaml:"temporal_namespace"`
	TemporalTaskQueue  string `yaml:"temporal_task_queue"`
	MinioEndpoint      string `yaml:"minio_endpoint"`
	MinioAccessKey     string `yaml:"minio_access_key"`
	MinioSecretKey     string `yaml:"minio_secret_key"`
	MinioArchiveBucket string `yaml:"minio_archive_bucket"`
	MinioInboxBucket   string `yaml:"minio_inbox_bucket"`
	MinioUseSSL        bool   `yaml:"minio_use_ssl"`
	WorkflowIDPrefix   string `yaml:"workflow_id_prefix"`
	MaxBodyBytes       int64  `yaml:"max_body_bytes"`
}

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_PATH, and environment variables, in increasing precedence.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:           defaultHTTPPort,
		StoreDriver:        defaultStoreDriver,
		TemporalAddress:    defaultTemporalAddress,
		TemporalNamespace:  defaultTemporalNS,
		TemporalTaskQueue:  defaultTaskQueue,
		MinioEndpoint:      defaultMinioEndpoint,
		MinioArchiveBucket: defaultArchiveBucket,
		MinioInboxBucket:   defaultInboxBucket,
		WorkflowIDPrefix:   defaultWorkflowPrefix,
		MaxBodyBytes:       defaultMaxBodyBytes,
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.HTTPPort = getenv("HTTP_PORT", cfg.HTTPPort)
	cfg.StoreDriver = getenv("STORE_DRIVER", cfg.StoreDriver)
	cfg.PostgresDSN = getenv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.DatabaseDSN = getenv("DB_DSN", cfg.DatabaseDSN)
	cfg.TemporalAddress = getenv("TEMPORAL_ADDRESS", cfg.TemporalAddress)
	cfg.TemporalNamespace = getenv("TEMPORAL_NAMESPACE", cfg.TemporalNamespace)
	cfg.TemporalTaskQueue = getenv("TEMPORAL_TASK_QUEUE", cfg.TemporalTaskQueue)
	cfg.MinioEndpoint = getenv("MINIO_ENDPOINT", cfg.MinioEndpoint)
	cfg.MinioAccessKey = getenv("MINIO_ACCESS_KEY", cfg.MinioAccessKey)
	cfg.MinioSecretKey = getenv("MINIO_SECRET_KEY", cfg.MinioSecretKey)
	cfg.MinioArchiveBucket = getenv("MINIO_ARCHIVE_BUCKET", cfg.MinioArchiveBucket)
	cfg.MinioInboxBucket = getenv("MINIO_INBOX_BUCKET", cfg.MinioInboxBucket)
	cfg.MinioUseSSL = getenvBool("MINIO_USE_SSL", cfg.MinioUseSSL)
	cfg.WorkflowIDPrefix = getenv("WORKFLOW_ID_PREFIX", cfg.WorkflowIDPrefix)
	cfg.MaxBodyBytes = int64(getenvInt("MAX_BODY_BYTES", int(cfg.MaxBodyBytes)))

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.PostgresDSN == "" {
			return Config{}, fmt.Errorf("POSTGRES_DSN is required")
		}
	case StoreDriverSQLite:
		if cfg.DatabaseDSN == "" {
			cfg.DatabaseDSN = defaultSQLiteDSN
		}
	case StoreDriverMySQL:
		if cfg.DatabaseDSN == "" {
			return Config{}, fmt.Errorf("DB_DSN is required for store driver %s", cfg.StoreDriver)
		}
	default:
		return Config{}, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

// WorkflowID is the id of the signature workflow that owns orderID.
func (c Config) WorkflowID(orderID string) string {
	return fmt.Sprintf("%s-%s", c.WorkflowIDPrefix, orderID)
}

func getenv(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
