// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every setting read from the environment.
type Config struct {
	DataDir  string `envconfig:"DATA_DIR" default:"./data"`
	HTTPPort string `envconfig:"HTTP_PORT" default:"8081"`

	// RulesDir holds CUE linking rules; the embedded defaults apply when empty.
	RulesDir      string        `envconfig:"RULES_DIR"`
	RuleCacheTTL  time.Duration `envconfig:"RULE_CACHE_TTL" default:"5m"`
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPrefix   string        `envconfig:"REDIS_PREFIX" default:"authsync"`
	PartitionSize int           `envconfig:"PARTITION_SIZE" default:"100"`

	NATSURL           string `envconfig:"NATS_URL"`
	NATSStream        string `envconfig:"NATS_STREAM" default:"AUTHSYNC"`
	NATSSubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"authsync"`

	OutboxSchedule string `envconfig:"OUTBOX_SCHEDULE" default:"@every 10s"`
	OutboxBatch    int    `envconfig:"OUTBOX_BATCH" default:"500"`

	ArchiveRetention     time.Duration `envconfig:"ARCHIVE_RETENTION" default:"720h"`
	ArchivePurgeSchedule string        `envconfig:"ARCHIVE_PURGE_SCHEDULE" default:"@daily"`

	ConsortiumFile string `envconfig:"CONSORTIUM_FILE"`
	TenantHeader   string `envconfig:"TENANT_HEADER" default:"X-Okapi-Tenant"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"LOG_DEVELOPMENT" default:"false"`
}

// Load reads dotenv files, then the environment. Without files a missing
// ./.env is ignored; named files must exist. Variables already set in the
// environment win over dotenv values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks settings envconfig cannot.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR must not be empty"))
	}
	if c.PartitionSize <= 0 {
		errs = append(errs, fmt.Errorf("PARTITION_SIZE must be positive, got %d", c.PartitionSize))
	}
	if c.OutboxBatch <= 0 {
		errs = append(errs, fmt.Errorf("OUTBOX_BATCH must be positive, got %d", c.OutboxBatch))
	}
	if c.ArchiveRetention < 0 {
		errs = append(errs, errors.New("ARCHIVE_RETENTION must not be negative"))
	}
	if c.TenantHeader == "" {
		errs = append(errs, errors.New("TENANT_HEADER must not be empty"))
	}
	return errors.Join(errs...)
}

// TenantDB returns the database path of a tenant.
func (c *Config) TenantDB(id string) string {
	return filepath.Join(c.DataDir, id+".db")
}
