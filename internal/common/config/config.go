// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig                `mapstructure:"app"`
	Camunda       CamundaConfig            `mapstructure:"camunda"`
	Database      DatabaseConfig           `mapstructure:"database"`
	Workers       map[string]WorkerConfig  `mapstructure:"workers"`
	HTTP          HTTPConfig               `mapstructure:"http"`
	Scraper       ScraperConfig            `mapstructure:"scraper"`
	Packages      map[string]PackageConfig `mapstructure:"packages"`
	Search        SearchConfig             `mapstructure:"search"`
	RateLimit     RateLimitConfig          `mapstructure:"ratelimit"`
	Profiles      ProfilesConfig           `mapstructure:"profiles"`
	Notifications NotificationConfig       `mapstructure:"notifications"`
	Auth          AuthConfig               `mapstructure:"auth"`
	Scheduler     SchedulerConfig          `mapstructure:"scheduler"`
	Registry      RegistryConfig           `mapstructure:"registry"`
	Logging       LoggingConfig            `mapstructure:"logging"`
	Tracing       TracingConfig            `mapstructure:"tracing"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	UsePlaintext   bool   `mapstructure:"use_plaintext"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	JobsIndex string   `mapstructure:"jobs_index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every Zeebe worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

type HTTPConfig struct {
	Address         string   `mapstructure:"address"`
	ReadTimeout     int      `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int      `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"` // milliseconds
	TrustedHeaders  bool     `mapstructure:"trusted_headers"`
	TrustedProxies  []string `mapstructure:"trusted_proxies"` // CIDRs or IPs allowed to set X-Forwarded-For
}

// --- Domain Configuration Sections ---

// ScraperConfig points at the external job-discovery service.
type ScraperConfig struct {
	BaseURL               string   `mapstructure:"base_url"`
	APIKey                string   `mapstructure:"api_key"`
	Timeout               int      `mapstructure:"timeout"` // milliseconds
	MaxJobsPerPlatform    int      `mapstructure:"max_jobs_per_platform"`
	Platforms             []string `mapstructure:"platforms"`
	MaxConcurrentSessions int      `mapstructure:"max_concurrent_sessions"`
	StaleSessionAfter     int      `mapstructure:"stale_session_after"` // minutes
}

// PackageConfig holds the scraping limits of one subscription package.
type PackageConfig struct {
	MaxSessionsPerDay  int      `mapstructure:"max_sessions_per_day"`
	MaxJobsPerPlatform int      `mapstructure:"max_jobs_per_platform"`
	Platforms          []string `mapstructure:"platforms"`
}

type SearchConfig struct {
	Backend      string `mapstructure:"backend"` // "postgres" or "elasticsearch"
	DefaultLimit int    `mapstructure:"default_limit"`
	MaxLimit     int    `mapstructure:"max_limit"`
}

type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Limit   int  `mapstructure:"limit"`
	Window  int  `mapstructure:"window"` // milliseconds
}

type ProfilesConfig struct {
	CacheTTL int `mapstructure:"cache_ttl"` // seconds
}

// NotificationConfig holds settings for the application notification hook.
type NotificationConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	EventsChannel string `mapstructure:"events_channel"`
	Timeout       int    `mapstructure:"timeout"` // milliseconds
	Email         struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// AuthConfig holds the Keycloak settings used to resolve actors from bearer tokens.
type AuthConfig struct {
	Keycloak struct {
		Enabled      bool   `mapstructure:"enabled"`
		URL          string `mapstructure:"url"`
		Realm        string `mapstructure:"realm"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		AdminRole    string `mapstructure:"admin_role"`
	} `mapstructure:"keycloak"`
}

type SchedulerConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	JobExpirySpec     string `mapstructure:"job_expiry_spec"`
	SessionReaperSpec string `mapstructure:"session_reaper_spec"`
}

type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}
