package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Admin       AdminConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Stripe      StripeConfig
	Mail        MailConfig
	Alert       AlertConfig
	Providers   ProvidersConfig
	Catalog     CatalogConfig
	Pricing     PricingConfig
	Fulfillment FulfillmentConfig
	Health      HealthConfig
	Storage     StorageConfig
	Kafka       KafkaConfig
	Telemetry   TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// IsProduction reports whether the app runs with production safeguards
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	SlowQueryThresh time.Duration
}

// RedisConfig holds Redis connection settings. An empty Host disables Redis
// and the in-memory cache implementations are used instead.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Enabled reports whether a Redis host is configured
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds admin token settings
type JWTConfig struct {
	Secret                string
	AccessTokenExpiration time.Duration
	Issuer                string
}

// AdminConfig holds the single operator account
type AdminConfig struct {
	Username     string
	PasswordHash string // bcrypt
	Email        string // receives alert emails
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	TrustedProxies   []string
	RateLimitRPS     float64 // per client IP
	RateLimitBurst   int
}

// StripeConfig holds payment webhook settings
type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	EventDedupeTTL   time.Duration
	IgnoreAPIVersion bool
}

// MailConfig holds the transactional mail API client settings
type MailConfig struct {
	BaseURL      string
	APIKey       string
	FromAddress  string
	FromName     string
	SupportEmail string
	Timeout      time.Duration
	AttachQRCode bool
}

// AlertConfig holds admin alert delivery settings
type AlertConfig struct {
	QueueSize   int
	SendTimeout time.Duration
	EmailAdmin  bool
}

// EsimGoConfig holds eSIM Go adapter settings
type EsimGoConfig struct {
	Enabled   bool
	BaseURL   string
	APIKey    string
	Priority  int
	RateLimit float64 // requests per second
	Timeout   time.Duration
}

// EsimAccessConfig holds eSIM Access adapter settings
type EsimAccessConfig struct {
	Enabled    bool
	BaseURL    string
	AccessCode string
	SecretKey  string
	Priority   int
	RateLimit  float64
	Timeout    time.Duration
}

// ProvidersConfig groups carrier adapter settings
type ProvidersConfig struct {
	EsimGo     EsimGoConfig
	EsimAccess EsimAccessConfig
}

// CatalogConfig holds catalog sync settings
type CatalogConfig struct {
	SyncEnabled       bool
	SyncInterval      time.Duration
	BatchSize         int
	FetchTimeout      time.Duration
	FailureStep       float64
	WarningThreshold  float64
	CriticalThreshold float64
	ArchiveSnapshots  bool
}

// PricingConfig holds scoring weights and cache settings
type PricingConfig struct {
	WeightCost        float64
	WeightReliability float64
	WeightPriority    float64
	CacheTTL          time.Duration
}

// FulfillmentConfig holds orchestrator settings
type FulfillmentConfig struct {
	AttemptTimeout time.Duration
	RunTimeout     time.Duration
	ParallelItems  int
}

// HealthConfig holds provider balance monitoring settings
type HealthConfig struct {
	Enabled             bool
	Interval            time.Duration
	LowBalanceThreshold float64
}

// StorageConfig holds S3-compatible object storage settings
type StorageConfig struct {
	Enabled      bool
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
	Prefix       string
}

// KafkaConfig holds order outcome event publishing settings
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// TelemetryConfig holds OpenTelemetry and profiling configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable tracing
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string
	Insecure          bool
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogsEnabled       bool
	DBTraceEnabled    bool
	ProfilerEnabled   bool
	ProfilerAddress   string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with SIMFLY_ prefix (e.g., SIMFLY_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SIMFLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			SlowQueryThresh: v.GetDuration("database.slow_query_threshold"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
			Issuer:                v.GetString("jwt.issuer"),
		},
		Admin: AdminConfig{
			Username:     v.GetString("admin.username"),
			PasswordHash: v.GetString("admin.password_hash"),
			Email:        v.GetString("admin.email"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			RateLimitRPS:     v.GetFloat64("http.rate_limit_rps"),
			RateLimitBurst:   v.GetInt("http.rate_limit_burst"),
		},
		Stripe: StripeConfig{
			SecretKey:        v.GetString("stripe.secret_key"),
			WebhookSecret:    v.GetString("stripe.webhook_secret"),
			EventDedupeTTL:   v.GetDuration("stripe.event_dedupe_ttl"),
			IgnoreAPIVersion: v.GetBool("stripe.ignore_api_version"),
		},
		Mail: MailConfig{
			BaseURL:      v.GetString("mail.base_url"),
			APIKey:       v.GetString("mail.api_key"),
			FromAddress:  v.GetString("mail.from_address"),
			FromName:     v.GetString("mail.from_name"),
			SupportEmail: v.GetString("mail.support_email"),
			Timeout:      v.GetDuration("mail.timeout"),
			AttachQRCode: v.GetBool("mail.attach_qr_code"),
		},
		Alert: AlertConfig{
			QueueSize:   v.GetInt("alert.queue_size"),
			SendTimeout: v.GetDuration("alert.send_timeout"),
			EmailAdmin:  v.GetBool("alert.email_admin"),
		},
		Providers: ProvidersConfig{
			EsimGo: EsimGoConfig{
				Enabled:   v.GetBool("providers.esimgo.enabled"),
				BaseURL:   v.GetString("providers.esimgo.base_url"),
				APIKey:    v.GetString("providers.esimgo.api_key"),
				Priority:  v.GetInt("providers.esimgo.priority"),
				RateLimit: v.GetFloat64("providers.esimgo.rate_limit"),
				Timeout:   v.GetDuration("providers.esimgo.timeout"),
			},
			EsimAccess: EsimAccessConfig{
				Enabled:    v.GetBool("providers.esimaccess.enabled"),
				BaseURL:    v.GetString("providers.esimaccess.base_url"),
				AccessCode: v.GetString("providers.esimaccess.access_code"),
				SecretKey:  v.GetString("providers.esimaccess.secret_key"),
				Priority:   v.GetInt("providers.esimaccess.priority"),
				RateLimit:  v.GetFloat64("providers.esimaccess.rate_limit"),
				Timeout:    v.GetDuration("providers.esimaccess.timeout"),
			},
		},
		Catalog: CatalogConfig{
			SyncEnabled:       v.GetBool("catalog.sync_enabled"),
			SyncInterval:      v.GetDuration("catalog.sync_interval"),
			BatchSize:         v.GetInt("catalog.batch_size"),
			FetchTimeout:      v.GetDuration("catalog.fetch_timeout"),
			FailureStep:       v.GetFloat64("catalog.failure_step"),
			WarningThreshold:  v.GetFloat64("catalog.warning_threshold"),
			CriticalThreshold: v.GetFloat64("catalog.critical_threshold"),
			ArchiveSnapshots:  v.GetBool("catalog.archive_snapshots"),
		},
		Pricing: PricingConfig{
			WeightCost:        v.GetFloat64("pricing.weights.cost"),
			WeightReliability: v.GetFloat64("pricing.weights.reliability"),
			WeightPriority:    v.GetFloat64("pricing.weights.priority"),
			CacheTTL:          v.GetDuration("pricing.cache_ttl"),
		},
		Fulfillment: FulfillmentConfig{
			AttemptTimeout: v.GetDuration("fulfillment.attempt_timeout"),
			RunTimeout:     v.GetDuration("fulfillment.run_timeout"),
			ParallelItems:  v.GetInt("fulfillment.parallel_items"),
		},
		Health: HealthConfig{
			Enabled:             v.GetBool("health.enabled"),
			Interval:            v.GetDuration("health.interval"),
			LowBalanceThreshold: v.GetFloat64("health.low_balance_threshold"),
		},
		Storage: StorageConfig{
			Enabled:      v.GetBool("storage.enabled"),
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			Bucket:       v.GetString("storage.bucket"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
			Prefix:       v.GetString("storage.prefix"),
		},
		Kafka: KafkaConfig{
			Enabled:      v.GetBool("kafka.enabled"),
			Brokers:      v.GetStringSlice("kafka.brokers"),
			Topic:        v.GetString("kafka.topic"),
			WriteTimeout: v.GetDuration("kafka.write_timeout"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			ProfilerEnabled:   v.GetBool("telemetry.profiler_enabled"),
			ProfilerAddress:   v.GetString("telemetry.profiler_address"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers defaults for values whose zero is meaningful: flags
// that are on unless disabled, and scoring weights that may be set to zero.
func setDefaults(v *viper.Viper) {
	v.SetDefault("pricing.weights.cost", 1.0)
	v.SetDefault("pricing.weights.reliability", -5.0)
	v.SetDefault("pricing.weights.priority", -2.0)
	v.SetDefault("catalog.sync_enabled", true)
	v.SetDefault("health.enabled", true)
	v.SetDefault("providers.esimgo.enabled", true)
	v.SetDefault("providers.esimaccess.enabled", true)
	v.SetDefault("alert.email_admin", true)
	v.SetDefault("mail.attach_qr_code", true)
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "simfly-engine"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "simfly"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.SlowQueryThresh == 0 {
		cfg.Database.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = 30 * time.Minute
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "simfly-engine"
	}
	if cfg.Admin.Username == "" {
		cfg.Admin.Username = "admin"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// admin sync runs synchronously
		cfg.HTTP.WriteTimeout = 5 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.HTTP.RateLimitRPS == 0 {
		cfg.HTTP.RateLimitRPS = 10
	}
	if cfg.HTTP.RateLimitBurst == 0 {
		cfg.HTTP.RateLimitBurst = 20
	}
	if cfg.Stripe.EventDedupeTTL == 0 {
		cfg.Stripe.EventDedupeTTL = 72 * time.Hour
	}
	if cfg.Mail.FromName == "" {
		cfg.Mail.FromName = "Simfly"
	}
	if cfg.Mail.Timeout == 0 {
		cfg.Mail.Timeout = 10 * time.Second
	}
	if cfg.Alert.QueueSize == 0 {
		cfg.Alert.QueueSize = 256
	}
	if cfg.Alert.SendTimeout == 0 {
		cfg.Alert.SendTimeout = 10 * time.Second
	}
	if cfg.Providers.EsimGo.BaseURL == "" {
		cfg.Providers.EsimGo.BaseURL = "https://api.esim-go.com/v2.4"
	}
	if cfg.Providers.EsimGo.RateLimit == 0 {
		cfg.Providers.EsimGo.RateLimit = 5
	}
	if cfg.Providers.EsimGo.Timeout == 0 {
		cfg.Providers.EsimGo.Timeout = 30 * time.Second
	}
	if cfg.Providers.EsimAccess.BaseURL == "" {
		cfg.Providers.EsimAccess.BaseURL = "https://api.esimaccess.com/api/v1/open"
	}
	if cfg.Providers.EsimAccess.RateLimit == 0 {
		cfg.Providers.EsimAccess.RateLimit = 8
	}
	if cfg.Providers.EsimAccess.Timeout == 0 {
		cfg.Providers.EsimAccess.Timeout = 30 * time.Second
	}
	if cfg.Catalog.SyncInterval == 0 {
		cfg.Catalog.SyncInterval = 6 * time.Hour
	}
	if cfg.Catalog.BatchSize == 0 {
		cfg.Catalog.BatchSize = 100
	}
	if cfg.Catalog.FetchTimeout == 0 {
		cfg.Catalog.FetchTimeout = 2 * time.Minute
	}
	if cfg.Catalog.FailureStep == 0 {
		cfg.Catalog.FailureStep = 0.1
	}
	if cfg.Catalog.WarningThreshold == 0 {
		cfg.Catalog.WarningThreshold = 0.7
	}
	if cfg.Catalog.CriticalThreshold == 0 {
		cfg.Catalog.CriticalThreshold = 0.5
	}
	if cfg.Pricing.CacheTTL == 0 {
		cfg.Pricing.CacheTTL = 10 * time.Minute
	}
	if cfg.Fulfillment.AttemptTimeout == 0 {
		cfg.Fulfillment.AttemptTimeout = 45 * time.Second
	}
	if cfg.Fulfillment.RunTimeout == 0 {
		cfg.Fulfillment.RunTimeout = 10 * time.Minute
	}
	if cfg.Fulfillment.ParallelItems == 0 {
		cfg.Fulfillment.ParallelItems = 1
	}
	if cfg.Health.Interval == 0 {
		cfg.Health.Interval = 30 * time.Minute
	}
	if cfg.Health.LowBalanceThreshold == 0 {
		cfg.Health.LowBalanceThreshold = 100
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "catalog-snapshots"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "simfly.order-outcomes"
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 5 * time.Second
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "simfly-engine"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Catalog.BatchSize < 1 {
		return fmt.Errorf("catalog.batch_size must be positive")
	}
	if c.Catalog.CriticalThreshold > c.Catalog.WarningThreshold {
		return fmt.Errorf("catalog.critical_threshold (%.2f) cannot exceed catalog.warning_threshold (%.2f)",
			c.Catalog.CriticalThreshold, c.Catalog.WarningThreshold)
	}
	if c.Catalog.FailureStep <= 0 || c.Catalog.FailureStep > 1 {
		return fmt.Errorf("catalog.failure_step must be in (0, 1]")
	}
	if c.Fulfillment.ParallelItems < 1 {
		return fmt.Errorf("fulfillment.parallel_items must be positive")
	}
	if c.Fulfillment.RunTimeout < c.Fulfillment.AttemptTimeout {
		return fmt.Errorf("fulfillment.run_timeout cannot be shorter than fulfillment.attempt_timeout")
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka.enabled is true")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage.enabled is true")
	}

	if c.App.IsProduction() {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Admin.PasswordHash == "" {
			return fmt.Errorf("admin.password_hash is required in production")
		}
		if c.Stripe.WebhookSecret == "" {
			return fmt.Errorf("stripe.webhook_secret is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
