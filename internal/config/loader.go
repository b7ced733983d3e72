package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jittakal/resistor/internal/config/dto"
)

// EnvPrefix is the prefix of environment overrides, e.g. RESISTOR_ENGINE_THREADS.
const EnvPrefix = "RESISTOR"

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Only expand values containing a ${...} reference.
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "resistord")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Kafka defaults
	l.v.SetDefault("kafka.security_protocol", "PLAINTEXT")
	l.v.SetDefault("kafka.sasl_mechanism", "PLAIN")
	l.v.SetDefault("kafka.consumer.auto_offset_reset", "earliest")
	l.v.SetDefault("kafka.consumer.session_timeout_ms", 10000)
	l.v.SetDefault("kafka.consumer.heartbeat_interval_ms", 3000)
	l.v.SetDefault("kafka.consumer.max_processing_time_ms", 60000)
	l.v.SetDefault("kafka.consumer.max_event_bytes", 1<<20)
	l.v.SetDefault("kafka.dlq.enabled", true)
	l.v.SetDefault("kafka.dlq.topic_suffix", "-dlq")

	// Engine defaults
	l.v.SetDefault("engine.threads", 10)
	l.v.SetDefault("engine.buffer_size", 100)
	l.v.SetDefault("engine.auto_flush_ms", 1000)
	l.v.SetDefault("engine.limiter_level", "global")
	l.v.SetDefault("engine.strategy.name", "unbound")
	l.v.SetDefault("engine.strategy.interval_ms", 1000)
	l.v.SetDefault("engine.strategy.occurrence", 10)
	l.v.SetDefault("engine.strategy.rate_per_second", 10.0)
	l.v.SetDefault("engine.strategy.burst", 1)
	l.v.SetDefault("engine.retries", 3)
	l.v.SetDefault("engine.retry_initial_backoff_ms", 100)
	l.v.SetDefault("engine.retry_max_backoff_ms", 30000)
	l.v.SetDefault("engine.drain_timeout_seconds", 60)

	// Sink defaults
	l.v.SetDefault("sink.backend", "file")
	l.v.SetDefault("sink.format", "parquet")
	l.v.SetDefault("sink.s3.sse_enabled", true)
	l.v.SetDefault("sink.redis.max_len", 0)
	l.v.SetDefault("sink.mongodb.collection", "events")
	l.v.SetDefault("sink.elasticsearch.index", "events")

	// Format defaults
	l.v.SetDefault("parquet.compression", "snappy")
	l.v.SetDefault("avro.codec", "deflate")

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.logging.file.path", "logs/resistord.log")
	l.v.SetDefault("observability.logging.file.max_size_mb", 100)
	l.v.SetDefault("observability.logging.file.max_backups", 5)
	l.v.SetDefault("observability.logging.file.max_age_days", 28)
	l.v.SetDefault("observability.logging.file.compress", true)
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.metrics.namespace", "resistor")
	l.v.SetDefault("observability.server.port", 8080)
	l.v.SetDefault("observability.server.mode", "release")
	l.v.SetDefault("observability.server.liveness_path", "/health/live")
	l.v.SetDefault("observability.server.readiness_path", "/health/ready")

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 30)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return err
	}

	if config.Kafka.SecurityProtocol != "PLAINTEXT" && config.Kafka.SecurityProtocol != "SSL" {
		switch config.Kafka.SASLMechanism {
		case "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
			if config.Kafka.SASLUsername == "" {
				return fmt.Errorf("kafka.sasl_username is required for %s", config.Kafka.SASLMechanism)
			}
		case "AWS_MSK_IAM":
			if !config.Kafka.AWSMSK.Enabled || config.Kafka.AWSMSK.Region == "" {
				return errors.New("kafka.aws_msk.enabled and kafka.aws_msk.region are required for AWS_MSK_IAM")
			}
		default:
			return fmt.Errorf("unsupported SASL mechanism: %s", config.Kafka.SASLMechanism)
		}
	}

	var err error
	switch config.Sink.Backend {
	case "s3":
		err = config.Sink.S3.Validate()
	case "azure":
		err = config.Sink.Azure.Validate()
	case "gcs":
		err = config.Sink.GCS.Validate()
	case "file":
		err = config.Sink.File.Validate()
	case "redis":
		err = config.Sink.Redis.Validate()
	case "mongodb":
		err = config.Sink.MongoDB.Validate()
	case "elasticsearch":
		err = config.Sink.Elasticsearch.Validate()
	}
	if err != nil {
		return fmt.Errorf("sink %s: %w", config.Sink.Backend, err)
	}

	strategy := config.Engine.Strategy
	switch strategy.Name {
	case "interval":
		if strategy.IntervalMS <= 0 {
			return errors.New("engine.strategy.interval_ms must be positive for the interval strategy")
		}
	case "window":
		if strategy.IntervalMS <= 0 || strategy.Occurrence <= 0 {
			return errors.New("engine.strategy.interval_ms and occurrence must be positive for the window strategy")
		}
	case "token_bucket":
		if strategy.Burst <= 0 {
			return errors.New("engine.strategy.burst must be positive for the token_bucket strategy")
		}
	}

	if config.Observability.Logging.Output == "file" && config.Observability.Logging.File.Path == "" {
		return errors.New("observability.logging.file.path is required for file output")
	}

	return nil
}
