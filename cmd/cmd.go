package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/frahmantamala/payfast-itn/internal"
	"github.com/frahmantamala/payfast-itn/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	clearData  bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "payfast-itn",
	Short: "PayFast ITN receiver",
	Long:  `Receives, verifies and records PayFast instant transaction notifications.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*internal.Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load(path + "/.env")

	// Check if we're running in Docker environment
	if os.Getenv("APP_ENV") == "production" || os.Getenv("DOCKER_ENV") == "true" {
		cfg := internal.LoadConfigFromEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("error validating config from environment: %w", err)
		}
		logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
		return cfg, nil
	}

	// Load configuration from file (development)
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("ENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	var cfg internal.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	return &cfg, nil
}

// setDefaults mirrors LoadConfigFromEnv so a sparse config.yml still validates.
func setDefaults(v *viper.Viper) {
	d := internal.LoadConfigFromEnv()

	v.SetDefault("http_server.port", d.Server.Port)
	v.SetDefault("http_server.read_header_timeout", d.Server.ReadHeaderTimeout)
	v.SetDefault("http_server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("http_server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("http_server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", d.Database.ConnMaxIdleTime)

	v.SetDefault("itn.path", d.ITN.Path)
	v.SetDefault("itn.validate_url", d.ITN.ValidateURL)
	v.SetDefault("itn.confirm_timeout", d.ITN.ConfirmTimeout)
	v.SetDefault("itn.max_body_bytes", d.ITN.MaxBodyBytes)
	v.SetDefault("itn.breaker.max_requests", d.ITN.Breaker.MaxRequests)
	v.SetDefault("itn.breaker.interval", d.ITN.Breaker.Interval)
	v.SetDefault("itn.breaker.timeout", d.ITN.Breaker.Timeout)
	v.SetDefault("itn.breaker.min_requests", d.ITN.Breaker.MinRequests)
	v.SetDefault("itn.breaker.failure_ratio", d.ITN.Breaker.FailureRatio)

	v.SetDefault("events.kafka.topic", d.Events.Kafka.Topic)

	v.SetDefault("observability.metrics.enabled", d.Observability.Metrics.Enabled)
	v.SetDefault("observability.metrics.path", d.Observability.Metrics.Path)
	v.SetDefault("observability.logging.level", d.Observability.Logging.Level)
	v.SetDefault("observability.logging.format", d.Observability.Logging.Format)

	v.SetDefault("sandbox.port", d.Sandbox.Port)
	v.SetDefault("sandbox.max_workers", d.Sandbox.MaxWorkers)
	v.SetDefault("sandbox.job_queue_size", d.Sandbox.JobQueueSize)
	v.SetDefault("sandbox.worker_pool_size", d.Sandbox.WorkerPoolSize)
	v.SetDefault("sandbox.delivery_timeout", d.Sandbox.DeliveryTimeout)
	v.SetDefault("sandbox.max_attempts", d.Sandbox.MaxAttempts)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "directory containing config.yml")
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "Clear existing data before seeding")

	rootCmd.AddCommand(httpServerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}
