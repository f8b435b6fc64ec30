package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/trainer-leaderboard/internal/eligibility"
	"github.com/trainer-leaderboard/internal/validator"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Redis       RedisConfig       `yaml:"redis"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	MaxIndex    MaxIndexConfig    `yaml:"max_index"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	Submission  SubmissionConfig  `yaml:"submission"`
	Eligibility EligibilityConfig `yaml:"eligibility"`
	Validation  ValidationConfig  `yaml:"validation"`
	Cohort      CohortConfig      `yaml:"cohort"`
}

// ServerConfig holds the ops HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	ReplicaHost     string        `yaml:"replica_host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string for the primary
func (c *PostgresConfig) ConnectionString() string {
	return c.connectionString(c.Host)
}

// ReplicaConnectionString returns the connection string for read-only
// leaderboard queries, falling back to the primary
func (c *PostgresConfig) ReplicaConnectionString() string {
	if c.ReplicaHost == "" {
		return c.ConnectionString()
	}
	return c.connectionString(c.ReplicaHost)
}

func (c *PostgresConfig) connectionString(host string) string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds the snapshot import topic configuration
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	GroupID       string        `yaml:"group_id"`
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// MaxIndexConfig holds the global maximum index rebuild settings
type MaxIndexConfig struct {
	RebuildInterval time.Duration `yaml:"rebuild_interval"`
	RebuildOnStart  bool          `yaml:"rebuild_on_start"`
	Enabled         bool          `yaml:"enabled"`
}

// LeaderboardConfig holds leaderboard-specific configuration
type LeaderboardConfig struct {
	DefaultLimit    int `yaml:"default_limit"`
	MaxLimit        int `yaml:"max_limit"`
	FreshnessMonths int `yaml:"freshness_months"`
	// ConcealPrivateCohorts reports inaccessible cohorts as not found. Defaults to true.
	ConcealPrivateCohorts *bool         `yaml:"conceal_private_cohorts"`
	RequestTimeout        time.Duration `yaml:"request_timeout"`
}

// ConcealPrivate reports whether inaccessible cohorts are hidden as not found
func (c LeaderboardConfig) ConcealPrivate() bool {
	return c.ConcealPrivateCohorts == nil || *c.ConcealPrivateCohorts
}

// SubmissionConfig holds snapshot submission limits
type SubmissionConfig struct {
	RatePerMinute    float64       `yaml:"rate_per_minute"`
	Burst            int           `yaml:"burst"`
	AmendGracePeriod time.Duration `yaml:"amend_grace_period"`
	Timeout          time.Duration `yaml:"timeout"`
}

// BanWindowConfig overrides the cheat look-back for leaderboards dated in [from, until)
type BanWindowConfig struct {
	From     string        `yaml:"from"`
	Until    string        `yaml:"until"`
	Duration time.Duration `yaml:"duration"`
}

// EligibilityConfig holds leaderboard eligibility settings
type EligibilityConfig struct {
	BanWindow  time.Duration     `yaml:"ban_window"`
	BanWindows []BanWindowConfig `yaml:"ban_windows"`
}

// ValidationConfig holds snapshot validation settings
type ValidationConfig struct {
	FieldsFile            string   `yaml:"fields_file"`
	TrustedSourcePrefixes []string `yaml:"trusted_source_prefixes"`
	LeaderFactor          string   `yaml:"leader_factor"`
}

// CohortConfig holds cohort resolution settings
type CohortConfig struct {
	OptOutRoles []string `yaml:"opt_out_roles"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 50
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 5
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "snapshot-imports"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "snapshot-importer"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}
	if c.Kafka.RetryAttempts == 0 {
		c.Kafka.RetryAttempts = 3
	}
	if c.Kafka.RetryDelay == 0 {
		c.Kafka.RetryDelay = 1 * time.Second
	}

	// Max index defaults
	if c.MaxIndex.RebuildInterval == 0 {
		c.MaxIndex.RebuildInterval = 30 * time.Minute
	}

	// Leaderboard defaults
	if c.Leaderboard.DefaultLimit == 0 {
		c.Leaderboard.DefaultLimit = 100
	}
	if c.Leaderboard.MaxLimit == 0 {
		c.Leaderboard.MaxLimit = 1000
	}
	if c.Leaderboard.FreshnessMonths == 0 {
		c.Leaderboard.FreshnessMonths = 3
	}
	if c.Leaderboard.ConcealPrivateCohorts == nil {
		conceal := true
		c.Leaderboard.ConcealPrivateCohorts = &conceal
	}
	if c.Leaderboard.RequestTimeout == 0 {
		c.Leaderboard.RequestTimeout = 10 * time.Second
	}

	// Submission defaults
	if c.Submission.RatePerMinute == 0 {
		c.Submission.RatePerMinute = 6
	}
	if c.Submission.Burst == 0 {
		c.Submission.Burst = 3
	}
	if c.Submission.AmendGracePeriod == 0 {
		c.Submission.AmendGracePeriod = 15 * time.Minute
	}
	if c.Submission.Timeout == 0 {
		c.Submission.Timeout = 5 * time.Second
	}

	// Eligibility defaults
	if c.Eligibility.BanWindow == 0 {
		c.Eligibility.BanWindow = 26 * 7 * 24 * time.Hour
	}

	// Validation defaults
	if c.Validation.TrustedSourcePrefixes == nil {
		c.Validation.TrustedSourcePrefixes = []string{"ss_"}
	}
	if c.Validation.LeaderFactor == "" {
		c.Validation.LeaderFactor = "1.5"
	}

	// Cohort defaults
	if c.Cohort.OptOutRoles == nil {
		c.Cohort.OptOutRoles = []string{"NoLB", "TrainerDex Excluded"}
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.MaxIndex.Enabled = true
	cfg.MaxIndex.RebuildOnStart = true
	return cfg
}

// Filter builds the eligibility filter from the configured ban windows.
// Window bounds are dates in YYYY-MM-DD form.
func (c EligibilityConfig) Filter() (*eligibility.Filter, error) {
	windows := make([]eligibility.BanWindow, 0, len(c.BanWindows))
	for i, w := range c.BanWindows {
		bw := eligibility.BanWindow{Duration: w.Duration}
		if w.From != "" {
			from, err := time.Parse(time.DateOnly, w.From)
			if err != nil {
				return nil, fmt.Errorf("ban window %d: parsing from: %w", i, err)
			}
			bw.From = &from
		}
		if w.Until != "" {
			until, err := time.Parse(time.DateOnly, w.Until)
			if err != nil {
				return nil, fmt.Errorf("ban window %d: parsing until: %w", i, err)
			}
			bw.Until = &until
		}
		windows = append(windows, bw)
	}
	return eligibility.New(windows, c.BanWindow)
}

// Options builds the validator options
func (c ValidationConfig) Options() (validator.Options, error) {
	factor, err := decimal.NewFromString(c.LeaderFactor)
	if err != nil {
		return validator.Options{}, fmt.Errorf("parsing leader_factor: %w", err)
	}
	if !factor.GreaterThan(decimal.NewFromInt(1)) {
		return validator.Options{}, fmt.Errorf("leader_factor must be greater than 1, got %s", factor)
	}
	return validator.Options{
		TrustedSourcePrefixes: c.TrustedSourcePrefixes,
		LeaderFactor:          factor,
	}, nil
}
