package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Receipts ReceiptsConfig `mapstructure:"receipts"`
	Netsuite NetsuiteConfig `mapstructure:"netsuite"`
	Exporter ExporterConfig `mapstructure:"exporter"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// ReceiptsConfig holds the policy thresholds for receipt metadata
type ReceiptsConfig struct {
	RequiredAboveCents int64    `mapstructure:"required_above_cents"`
	MaxBytes           int64    `mapstructure:"max_bytes"`
	MaxFilesPerItem    int      `mapstructure:"max_files_per_item"`
	AllowedMimeTypes   []string `mapstructure:"allowed_mime_types"`
}

// NetsuiteConfig holds the ledger client configuration
type NetsuiteConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Account        string        `mapstructure:"account"`
	TokenID        string        `mapstructure:"token_id"`
	TokenSecret    string        `mapstructure:"token_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ExporterConfig holds batch export orchestration configuration
type ExporterConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseBackoff    time.Duration `mapstructure:"base_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	ClaimLease     time.Duration `mapstructure:"claim_lease"`
	RemediationDir string        `mapstructure:"remediation_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/expenseflow.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Receipt policy defaults
	viper.SetDefault("receipts.required_above_cents", 2500)
	viper.SetDefault("receipts.max_bytes", 10*1024*1024)
	viper.SetDefault("receipts.max_files_per_item", 5)
	viper.SetDefault("receipts.allowed_mime_types",
		[]string{"application/pdf", "image/jpeg", "image/png", "image/heic"})

	// NetSuite defaults
	viper.SetDefault("netsuite.request_timeout", 30*time.Second)

	// Exporter defaults
	viper.SetDefault("exporter.poll_interval", 60*time.Second)
	viper.SetDefault("exporter.max_attempts", 4)
	viper.SetDefault("exporter.base_backoff", 1*time.Second)
	viper.SetDefault("exporter.max_backoff", 8*time.Second)
	viper.SetDefault("exporter.claim_lease", 5*time.Minute)
	viper.SetDefault("exporter.remediation_dir", "remediation")

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("netsuite.base_url", "NETSUITE_BASE_URL")
	viper.BindEnv("netsuite.account", "NETSUITE_ACCOUNT")
	viper.BindEnv("netsuite.token_id", "NETSUITE_TOKEN_ID")
	viper.BindEnv("netsuite.token_secret", "NETSUITE_TOKEN_SECRET")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Receipts.RequiredAboveCents < 0 {
		return fmt.Errorf("receipts.required_above_cents must not be negative")
	}
	if c.Exporter.MaxAttempts < 1 {
		return fmt.Errorf("exporter.max_attempts must be at least 1")
	}
	if c.Netsuite.BaseURL != "" && c.Netsuite.TokenID == "" {
		return fmt.Errorf("netsuite.token_id is required when netsuite.base_url is set")
	}
	return nil
}
