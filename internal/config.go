package internal

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	ITN           ITNConfig           `mapstructure:"itn"`
	Events        EventsConfig        `mapstructure:"events"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Sandbox       SandboxConfig       `mapstructure:"sandbox"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source" validate:"required"`
}

// ITNConfig holds the notification endpoint and the gateway trust settings.
type ITNConfig struct {
	Path              string        `mapstructure:"path" validate:"required,startswith=/"`
	MerchantID        string        `mapstructure:"merchant_id" validate:"max=15"`
	Passphrase        string        `mapstructure:"passphrase"`
	ValidateURL       string        `mapstructure:"validate_url" validate:"required,url"`
	ConfirmTimeout    time.Duration `mapstructure:"confirm_timeout" validate:"required"`
	AllowedNetworks   []string      `mapstructure:"allowed_networks" validate:"dive,cidr|ip"`
	TrustForwardedFor bool          `mapstructure:"trust_forwarded_for"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes" validate:"min=0"`
	Breaker           BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio" validate:"min=0,max=1"`
}

type EventsConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers" validate:"required_if=Enabled true"`
	Topic   string   `mapstructure:"topic" validate:"required_if=Enabled true"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// SandboxConfig drives the local gateway simulator.
type SandboxConfig struct {
	Port            int           `mapstructure:"port"`
	NotifyURL       string        `mapstructure:"notify_url" validate:"omitempty,url"`
	MaxWorkers      int           `mapstructure:"max_workers"`
	JobQueueSize    int           `mapstructure:"job_queue_size"`
	WorkerPoolSize  int           `mapstructure:"worker_pool_size"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
}

// ----------------- DEFAULTS -----------------

// LoadConfigFromEnv builds the configuration for container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		ITN: ITNConfig{
			Path:              getEnv("ITN_PATH", "/itn"),
			MerchantID:        getEnv("ITN_MERCHANT_ID", ""),
			Passphrase:        getEnv("ITN_PASSPHRASE", ""),
			ValidateURL:       getEnv("ITN_VALIDATE_URL", "https://www.payfast.co.za/eng/query/validate"),
			ConfirmTimeout:    getEnvAsDuration("ITN_CONFIRM_TIMEOUT", 10*time.Second),
			AllowedNetworks:   getEnvAsList("ITN_ALLOWED_NETWORKS"),
			TrustForwardedFor: getEnv("ITN_TRUST_FORWARDED_FOR", "false") == "true",
			MaxBodyBytes:      int64(getEnvAsInt("ITN_MAX_BODY_BYTES", 64<<10)),
			Breaker: BreakerConfig{
				MaxRequests:  uint32(getEnvAsInt("ITN_BREAKER_MAX_REQUESTS", 1)),
				Interval:     getEnvAsDuration("ITN_BREAKER_INTERVAL", time.Minute),
				Timeout:      getEnvAsDuration("ITN_BREAKER_TIMEOUT", 30*time.Second),
				MinRequests:  uint32(getEnvAsInt("ITN_BREAKER_MIN_REQUESTS", 3)),
				FailureRatio: 0.6,
			},
		},
		Events: EventsConfig{
			Kafka: KafkaConfig{
				Enabled: getEnv("KAFKA_ENABLED", "false") == "true",
				Brokers: getEnvAsList("KAFKA_BROKERS"),
				Topic:   getEnv("KAFKA_TOPIC", "itn.transactions"),
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnv("METRICS_ENABLED", "true") == "true",
				Path:    getEnv("METRICS_PATH", "/metrics"),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
		Sandbox: SandboxConfig{
			Port:            getEnvAsInt("SANDBOX_PORT", 8090),
			NotifyURL:       getEnv("SANDBOX_NOTIFY_URL", ""),
			MaxWorkers:      getEnvAsInt("SANDBOX_MAX_WORKERS", 4),
			JobQueueSize:    getEnvAsInt("SANDBOX_JOB_QUEUE_SIZE", 100),
			WorkerPoolSize:  getEnvAsInt("SANDBOX_WORKER_POOL_SIZE", 4),
			DeliveryTimeout: getEnvAsDuration("SANDBOX_DELIVERY_TIMEOUT", 10*time.Second),
			MaxAttempts:     getEnvAsInt("SANDBOX_MAX_ATTEMPTS", 3),
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ----------------- VALIDATION -----------------

var structValidator = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	var errs []string

	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.ITN.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("itn config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *ITNConfig) Validate() error {
	u, err := url.Parse(c.ValidateURL)
	if err != nil {
		return fmt.Errorf("invalid validate_url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("validate_url must be http(s), got %q", u.Scheme)
	}
	for _, network := range c.AllowedNetworks {
		if _, err := netip.ParsePrefix(network); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(network); err != nil {
			return fmt.Errorf("invalid allowed network %s", network)
		}
	}
	if c.Path == "/api/v1" || strings.HasPrefix(c.Path, "/api/v1/") {
		return errors.New("path must not live under /api/v1")
	}
	return nil
}
