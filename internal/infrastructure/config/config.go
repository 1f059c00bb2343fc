package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Store         StoreConfig         `mapstructure:"store"`
	Events        EventsConfig        `mapstructure:"events"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	RateLimit       int           `mapstructure:"rate_limit"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
	IdempotencyTTL  time.Duration `mapstructure:"idempotency_ttl"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// GatewayConfig holds the M-Pesa (Daraja) STK push settings.
type GatewayConfig struct {
	Provider                string        `mapstructure:"provider"`
	BaseURL                 string        `mapstructure:"base_url"`
	ConsumerKey             string        `mapstructure:"consumer_key"`
	ConsumerSecret          string        `mapstructure:"consumer_secret"`
	ShortCode               string        `mapstructure:"short_code"`
	Passkey                 string        `mapstructure:"passkey"`
	CallbackURL             string        `mapstructure:"callback_url"`
	TestMSISDN              string        `mapstructure:"test_msisdn"`
	MerchAccountRef         string        `mapstructure:"merch_account_ref"`
	BookingAccountRef       string        `mapstructure:"booking_account_ref"`
	CacheToken              bool          `mapstructure:"cache_token"`
	HTTPTimeout             time.Duration `mapstructure:"http_timeout"`
	TokenRetries            uint          `mapstructure:"token_retries"`
	TokenRetryDelay         time.Duration `mapstructure:"token_retry_delay"`
	CircuitBreakerThreshold uint32        `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
	// Mock gateway only: result posted back to CallbackURL after the delay.
	MockCallbackDelay time.Duration `mapstructure:"mock_callback_delay"`
	MockResultCode    int           `mapstructure:"mock_result_code"`
}

// StoreConfig controls retention of settled transactions. A zero Retention
// keeps every record for the life of the process.
type StoreConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type EventsConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	SubscriberBuffer  int           `mapstructure:"subscriber_buffer"`
	RelayEnabled      bool          `mapstructure:"relay_enabled"`
	Stream            string        `mapstructure:"stream"`
}

type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	Database         string        `mapstructure:"database"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MinConnections   int           `mapstructure:"min_connections"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	// StatementTimeout bounds each audit query; zero leaves the server default.
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	SSLMode          string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

type WorkerConfig struct {
	BatchSize     int64         `mapstructure:"batch_size"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
	ConsumerGroup string        `mapstructure:"consumer_group"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

// legacyEnv maps the storefront's unprefixed environment variable names onto
// config keys so existing deployments keep working.
var legacyEnv = map[string]string{
	"server.port":             "PORT",
	"gateway.consumer_key":    "CONSUMER_KEY",
	"gateway.consumer_secret": "CONSUMER_SECRET",
	"gateway.short_code":      "SHORT_CODE",
	"gateway.passkey":         "PASSKEY",
	"gateway.callback_url":    "CALLBACK_URL",
	"gateway.test_msisdn":     "TEST_MSISDN",
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables, STOREFRONT_GATEWAY_SHORT_CODE etc.
	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "STOREFRONT_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/storefront")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout cannot be negative"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be positive"))
	}

	switch c.Gateway.Provider {
	case "daraja":
		if c.Gateway.ShortCode == "" {
			errs = append(errs, fmt.Errorf("gateway.short_code is required"))
		}
		if _, err := url.ParseRequestURI(c.Gateway.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("gateway.base_url must be a valid URL"))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("gateway.provider must be daraja or mock, got %q", c.Gateway.Provider))
	}
	if _, err := url.ParseRequestURI(c.Gateway.CallbackURL); err != nil {
		errs = append(errs, fmt.Errorf("gateway.callback_url must be a valid URL"))
	}
	if c.Gateway.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("gateway.http_timeout must be positive"))
	}

	if c.Store.Retention < 0 {
		errs = append(errs, fmt.Errorf("store.retention cannot be negative"))
	}
	if c.Store.Retention > 0 && c.Store.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("store.sweep_interval must be positive when retention is set"))
	}
	if c.Events.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("events.heartbeat_interval must be positive"))
	}
	if c.Events.RelayEnabled && c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Gateway.Provider == "daraja" && (c.Gateway.ConsumerKey == "" || c.Gateway.ConsumerSecret == "") {
			errs = append(errs, fmt.Errorf("gateway consumer key and secret required in production"))
		}
		if c.Gateway.Passkey == "" {
			errs = append(errs, fmt.Errorf("gateway.passkey required in production"))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 10000)
	v.SetDefault("server.read_timeout", "15s")
	// Zero write timeout: /events connections stay open indefinitely.
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.max_body_bytes", 50*1024)
	v.SetDefault("server.rate_limit", 30)
	v.SetDefault("server.rate_limit_window", "1m")
	v.SetDefault("server.idempotency_ttl", "24h")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Gateway defaults
	v.SetDefault("gateway.provider", "daraja")
	v.SetDefault("gateway.base_url", "https://sandbox.safaricom.co.ke")
	v.SetDefault("gateway.short_code", "174379")
	v.SetDefault("gateway.callback_url", "https://starkville.loca.lt/callback")
	v.SetDefault("gateway.test_msisdn", "254705809412")
	v.SetDefault("gateway.merch_account_ref", "Starkville Merch")
	v.SetDefault("gateway.booking_account_ref", "Starkville Bookings")
	v.SetDefault("gateway.cache_token", true)
	v.SetDefault("gateway.http_timeout", "30s")
	v.SetDefault("gateway.token_retries", 3)
	v.SetDefault("gateway.token_retry_delay", "500ms")
	v.SetDefault("gateway.circuit_breaker_threshold", 5)
	v.SetDefault("gateway.circuit_breaker_timeout", "30s")
	v.SetDefault("gateway.mock_callback_delay", "3s")
	v.SetDefault("gateway.mock_result_code", 0)

	// Store defaults
	v.SetDefault("store.retention", "0s")
	v.SetDefault("store.sweep_interval", "5m")

	// Events defaults
	v.SetDefault("events.heartbeat_interval", "15s")
	v.SetDefault("events.subscriber_buffer", 256)
	v.SetDefault("events.relay_enabled", false)
	v.SetDefault("events.stream", "storefront:transactions")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "storefront")
	v.SetDefault("database.database", "storefront")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.statement_timeout", "10s")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.consumer_group", "storefront-audit")
	v.SetDefault("worker.lock_ttl", "30s")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	// Instance ID
	v.SetDefault("instance_id", "storefront-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
