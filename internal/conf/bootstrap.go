// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with PESAGATE_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Required environment variables:
//   - MYSQL_DSN or PESAGATE_DATA_DATABASE_SOURCE: MySQL connection string
//   - GATEWAY_API_KEY or PESAGATE_AUTH_API_KEY: API key for gateway callers
//   - ENCRYPTION_KEY or PESAGATE_AUTH_ENCRYPTION_KEY: Data encryption key
//
// Parameters:
//   - configPath: Path to the configuration file or directory
//
// Returns:
//   - *Bootstrap: Loaded configuration
//   - error: Configuration loading or validation error
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support with PESAGATE_ prefix
	v.SetEnvPrefix("PESAGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names (without PESAGATE_ prefix) for compatibility
	// Bind specific environment variables for required fields
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "PESAGATE_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "PESAGATE_DATA_REDIS_ADDR")
	_ = v.BindEnv("auth.api_key", "GATEWAY_API_KEY", "PESAGATE_AUTH_API_KEY")
	_ = v.BindEnv("auth.encryption.key", "ENCRYPTION_KEY", "PESAGATE_AUTH_ENCRYPTION_KEY")

	// Load configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// If config file is specified but not found, return error
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// Parse configuration into Bootstrap structure
	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Gateway: &Gateway{
			DefaultProvider:   v.GetString("gateway.default_provider"),
			ReconcileInterval: durationpb.New(v.GetDuration("gateway.reconcile_interval")),
			WebhookUrl:        v.GetString("gateway.webhook_url"),
		},
		Resilience: &Resilience{
			CheckInterval:       durationpb.New(v.GetDuration("resilience.check_interval")),
			FailureThreshold:    v.GetInt32("resilience.failure_threshold"),
			ResetTimeout:        durationpb.New(v.GetDuration("resilience.reset_timeout")),
			MaxHealingAttempts:  v.GetInt32("resilience.max_healing_attempts"),
			AutoRestartEnabled:  v.GetBool("resilience.auto_restart_enabled"),
			AutoFailoverEnabled: v.GetBool("resilience.auto_failover_enabled"),
			HealthCheckTimeout:  durationpb.New(v.GetDuration("resilience.health_check_timeout")),
			EventLogCapacity:    v.GetInt32("resilience.event_log_capacity"),
		},
		Auth: &Auth{
			ApiKey: v.GetString("auth.api_key"),
			Encryption: &Auth_Encryption{
				Key: v.GetString("auth.encryption.key"),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	// Provider entries come from the config file only; env overrides for
	// per-provider secrets use the PESAGATE_ prefixed nested keys.
	if err := v.UnmarshalKey("providers", &bc.Providers); err != nil {
		return nil, fmt.Errorf("failed to parse providers configuration: %w", err)
	}

	// Validate required fields
	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 30*time.Second)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is required from environment

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Gateway defaults
	v.SetDefault("gateway.default_provider", "mpesa")
	v.SetDefault("gateway.reconcile_interval", 5*time.Minute)

	// Resilience defaults
	v.SetDefault("resilience.check_interval", 30*time.Second)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout", 30*time.Second)
	v.SetDefault("resilience.max_healing_attempts", 3)
	v.SetDefault("resilience.auto_restart_enabled", true)
	v.SetDefault("resilience.auto_failover_enabled", true)
	v.SetDefault("resilience.health_check_timeout", 5*time.Second)
	v.SetDefault("resilience.event_log_capacity", 500)

	// Auth defaults
	// Note: auth.api_key and auth.encryption.key are required from environment

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.env", "production")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing required fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	// Check required database configuration
	if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
		missingFields = append(missingFields, "data.database.source (MYSQL_DSN)")
	}

	// Check required auth configuration
	if bc.Auth == nil || bc.Auth.ApiKey == "" {
		missingFields = append(missingFields, "auth.api_key (GATEWAY_API_KEY)")
	}

	if bc.Auth == nil || bc.Auth.Encryption == nil || bc.Auth.Encryption.Key == "" {
		missingFields = append(missingFields, "auth.encryption.key (ENCRYPTION_KEY)")
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	for _, p := range bc.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers entry missing name")
		}
	}

	return nil
}
