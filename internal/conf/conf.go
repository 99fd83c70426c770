package conf

import (
	"time"

	"google.golang.org/protobuf/types/known/durationpb"
)

// Bootstrap is the root configuration for the PesaGate service.
type Bootstrap struct {
	Server     *Server
	Data       *Data
	Gateway    *Gateway
	Resilience *Resilience
	Providers  []*Provider
	Auth       *Auth
	Log        *Log
}

// Server holds transport configuration.
type Server struct {
	Http *Server_HTTP
}

// Server_HTTP configures the HTTP listener.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds storage configuration.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

// Data_Database configures the MySQL connection.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis configures the Redis connection.
type Data_Redis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Gateway holds payment routing configuration.
type Gateway struct {
	// DefaultProvider receives payments that do not request a provider.
	DefaultProvider string
	// ReconcileInterval is how often pending transactions are re-queried
	// against their provider.
	ReconcileInterval *durationpb.Duration
	// WebhookUrl receives circuit and failover event notifications.
	// Empty disables outbound webhooks.
	WebhookUrl string
}

// Resilience configures the circuit breaker layer and the self-healer.
type Resilience struct {
	// CheckInterval is the self-healer tick period.
	CheckInterval *durationpb.Duration
	// FailureThreshold is consecutive failures before a breaker opens.
	FailureThreshold int32
	// ResetTimeout is how long a breaker stays open before a trial.
	ResetTimeout *durationpb.Duration
	// MaxHealingAttempts is the healing budget per incident.
	MaxHealingAttempts int32
	// AutoRestartEnabled allows automatic breaker reset attempts.
	AutoRestartEnabled bool
	// AutoFailoverEnabled allows backup-provider redirection signals.
	AutoFailoverEnabled bool
	// HealthCheckTimeout bounds a single provider health probe.
	HealthCheckTimeout *durationpb.Duration
	// EventLogCapacity bounds the in-memory healing event log.
	EventLogCapacity int32
}

// Provider configures one upstream payment provider adapter.
type Provider struct {
	Name      string        `mapstructure:"name"`
	BaseUrl   string        `mapstructure:"base_url"`
	ApiKey    string        `mapstructure:"api_key"`
	ApiSecret string        `mapstructure:"api_secret"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Enabled   bool          `mapstructure:"enabled"`
	// Backups is the ordered failover priority list for this provider.
	Backups []string `mapstructure:"backups"`
	// ProxyUrl optionally routes adapter traffic through a SOCKS proxy.
	ProxyUrl string `mapstructure:"proxy_url"`
	// RpmLimit caps requests per minute to this provider (0 = no limit).
	RpmLimit int32 `mapstructure:"rpm_limit"`
	// Extra carries provider-specific settings, e.g. mpesa shortcode and
	// passkey, or the MTN subscription key.
	Extra map[string]string `mapstructure:"extra"`
}

// Auth holds gateway authentication secrets.
type Auth struct {
	// ApiKey authenticates callers of the gateway API.
	ApiKey     string
	Encryption *Auth_Encryption
}

// Auth_Encryption configures at-rest encryption of customer PII.
type Auth_Encryption struct {
	Key string
}

// Log configures the zap logger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
