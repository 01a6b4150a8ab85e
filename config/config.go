package config

import (
	"log"
	"net/url"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// Service
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"sitesign"`
	SiteURL     string `env:"SITE_URL" envDefault:"https://sitesign.app"`

	// PostgreSQL
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"sitesign"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"10"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"50"`
	AutoMigrate        bool   `env:"POSTGRESQL_AUTO_MIGRATE" envDefault:"false"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"sitesign"`

	// RabbitMQ
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// Push delivery. Both VAPID keys are needed to send; the public key alone lets
	// clients subscribe.
	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	PushProvider    string `env:"PUSH_PROVIDER" envDefault:"auto"` // auto, mock
	PushTTLSeconds  int    `env:"PUSH_TTL_SECONDS" envDefault:"600"`

	// Geofence
	GeofenceSnoozeMinutes    int     `env:"GEOFENCE_SNOOZE_MINUTES" envDefault:"30"`
	GeofenceFallbackMinutes  int     `env:"GEOFENCE_FALLBACK_MINUTES" envDefault:"10"`
	GeofenceDefaultRadiusKm  float64 `env:"GEOFENCE_DEFAULT_RADIUS_KM" envDefault:"0.5"`
	GeofencePollSeconds      int     `env:"GEOFENCE_POLL_SECONDS" envDefault:"60"`
	NotifyRateLimitPerMinute int     `env:"NOTIFY_RATE_LIMIT" envDefault:"6"`

	// Compensation sweep
	SweepIntervalMinutes int `env:"SWEEP_INTERVAL_MINUTES" envDefault:"5"`
	SweepGraceMinutes    int `env:"SWEEP_GRACE_MINUTES" envDefault:"5"`
	SweepBatchSize       int `env:"SWEEP_BATCH_SIZE" envDefault:"200"`

	// Visitor agent
	AgentAPIBaseURL string `env:"AGENT_API_BASE_URL" envDefault:"http://localhost:8888"`
	AgentID         string `env:"AGENT_ID"`
	AgentDurable    bool   `env:"AGENT_DURABLE_TIMERS" envDefault:"false"`

	// Snowflake
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// Logging
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// OpenTelemetry
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTelInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`

	// Rate limiting, applied in middleware
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}

	validateConfig()
}

func validateConfig() {
	if Cfg.VAPIDPublicKey == "" || Cfg.VAPIDPrivateKey == "" {
		log.Printf("WARN: VAPID_PUBLIC_KEY/VAPID_PRIVATE_KEY not set, web push is disabled")
	}

	if _, err := url.Parse(Cfg.SiteURL); err != nil {
		log.Fatalf("SITE_URL is not a valid URL: %v", err)
	}

	if Cfg.GeofenceDefaultRadiusKm <= 0 {
		log.Fatal("GEOFENCE_DEFAULT_RADIUS_KM must be positive")
	}
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

// VAPIDSubject is the sender identity presented to push services.
func (c *Config) VAPIDSubject() string {
	host := "sitesign.app"
	if u, err := url.Parse(c.SiteURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return "mailto:admin@" + host
}

func (c *Config) PushConfigured() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func (c *Config) SnoozeWindow() time.Duration {
	return time.Duration(c.GeofenceSnoozeMinutes) * time.Minute
}

func (c *Config) FallbackDelay() time.Duration {
	return time.Duration(c.GeofenceFallbackMinutes) * time.Minute
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.GeofencePollSeconds) * time.Second
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
