package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Config holds all configuration for a service
type Config struct {
	Service      ServiceConfig      `mapstructure:"service"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Flyway       FlywayConfig       `mapstructure:"flyway"`
	Encryption   EncryptionConfig   `mapstructure:"encryption"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Version      string             `mapstructure:"version"`
}

// ServiceConfig holds service-specific configuration
type ServiceConfig struct {
	Name        string `mapstructure:"name" envconfig:"SERVICE_NAME"`
	Environment string `mapstructure:"environment" envconfig:"ENVIRONMENT" default:"development"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port         int           `mapstructure:"port" envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" envconfig:"HTTP_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" envconfig:"HTTP_IDLE_TIMEOUT" default:"120s"`
}

// DatabaseConfig holds the orchestrator's own admin database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" envconfig:"DB_HOST" default:"localhost"`
	Port            int           `mapstructure:"port" envconfig:"DB_PORT" default:"5432"`
	User            string        `mapstructure:"user" envconfig:"DB_USER" default:"postgres"`
	Password        string        `mapstructure:"password" envconfig:"DB_PASSWORD" default:"postgres"`
	Database        string        `mapstructure:"database" envconfig:"DB_NAME" default:"schemafleet_admin"`
	SSLMode         string        `mapstructure:"ssl_mode" envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" envconfig:"DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" envconfig:"DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// KafkaConfig holds Kafka configuration for batch lifecycle events
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers" envconfig:"KAFKA_BROKERS"`
	Topic   string   `mapstructure:"topic" envconfig:"KAFKA_TOPIC" default:"migration-events"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format     string `mapstructure:"format" envconfig:"LOG_FORMAT" default:"json"`
	OutputPath string `mapstructure:"output_path" envconfig:"LOG_OUTPUT_PATH" default:"stdout"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled" envconfig:"METRICS_ENABLED" default:"true"`
	TracingEnabled bool   `mapstructure:"tracing_enabled" envconfig:"TRACING_ENABLED" default:"false"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint" envconfig:"JAEGER_ENDPOINT" default:"http://localhost:14268/api/traces"`
	ServiceName    string `mapstructure:"service_name" envconfig:"TELEMETRY_SERVICE_NAME"`
}

// FlywayConfig holds configuration for the external migration tool
type FlywayConfig struct {
	Binary         string        `mapstructure:"binary" envconfig:"FLYWAY_BINARY" default:"flyway"`
	MigrationsDir  string        `mapstructure:"migrations_dir" envconfig:"FLYWAY_MIGRATIONS_DIR" default:"./migrations"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" envconfig:"FLYWAY_COMMAND_TIMEOUT" default:"60s"`
}

// EncryptionConfig holds credential encryption configuration
type EncryptionConfig struct {
	Key        string `mapstructure:"key" envconfig:"ENCRYPTION_KEY"`
	KeyType    string `mapstructure:"key_type" envconfig:"ENCRYPTION_KEY_TYPE" default:"passphrase"`
	Salt       string `mapstructure:"salt" envconfig:"ENCRYPTION_SALT"`
	Iterations int    `mapstructure:"iterations" envconfig:"ENCRYPTION_ITERATIONS" default:"100000"`
}

// OrchestratorConfig holds migration orchestration configuration
type OrchestratorConfig struct {
	RollbackOnFailure     bool          `mapstructure:"rollback_on_failure" envconfig:"ROLLBACK_ON_FAILURE" default:"true"`
	DefaultTargetPassword string        `mapstructure:"default_target_password" envconfig:"TARGET_DB_PASSWORD" default:"postgres"`
	PrecheckTimeout       time.Duration `mapstructure:"precheck_timeout" envconfig:"PRECHECK_TIMEOUT" default:"5s"`
	ExecutedBy            string        `mapstructure:"executed_by" envconfig:"EXECUTED_BY" default:"orchestrator"`
}

// Load loads configuration from files and environment
func Load(serviceName string) (*Config, error) {
	var cfg Config

	// Set default service name
	cfg.Service.Name = serviceName
	cfg.Telemetry.ServiceName = serviceName

	// Set config file paths
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("./configs/services/" + serviceName)
	viper.AddConfigPath(".")

	// Read config file if exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; ignore error and continue with env vars
	}

	// Unmarshal config file
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Override with environment variables
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	// Service-specific environment variables
	envPrefix := fmt.Sprintf("%s_", toEnvPrefix(serviceName))
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process service env vars: %w", err)
	}

	// Set version
	if version := os.Getenv("VERSION"); version != "" {
		cfg.Version = version
	} else {
		cfg.Version = "dev"
	}

	return &cfg, nil
}

// DSN returns the admin database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// toEnvPrefix converts service name to environment variable prefix
func toEnvPrefix(name string) string {
	result := ""
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result += "_"
		}
		if r >= 'a' && r <= 'z' {
			result += string(r - 32) // Convert to uppercase
		} else {
			result += string(r)
		}
	}
	return result
}
