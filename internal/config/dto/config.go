package dto

import (
	"fmt"
	"time"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Engine        EngineConfig        `mapstructure:"engine"`
	Sink          SinkConfig          `mapstructure:"sink"`
	Parquet       ParquetConfig       `mapstructure:"parquet"`
	Avro          AvroConfig          `mapstructure:"avro"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata
type ApplicationInfo struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// KafkaConfig contains Kafka-related configuration
type KafkaConfig struct {
	BootstrapServers []string       `mapstructure:"bootstrap_servers" validate:"required,min=1"`
	SecurityProtocol string         `mapstructure:"security_protocol" validate:"oneof=PLAINTEXT SASL_PLAINTEXT SASL_SSL SSL"`
	SASLMechanism    string         `mapstructure:"sasl_mechanism"`
	SASLUsername     string         `mapstructure:"sasl_username"`
	SASLPassword     string         `mapstructure:"sasl_password"`
	TLS              TLSConfig      `mapstructure:"tls"`
	AWSMSK           AWSMSKConfig   `mapstructure:"aws_msk"`
	Consumer         ConsumerConfig `mapstructure:"consumer"`
	DLQ              DLQConfig      `mapstructure:"dlq"`
}

// TLSConfig contains TLS settings for the Kafka connection
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
	CACertFile         string `mapstructure:"ca_cert_file"`
	ClientCertFile     string `mapstructure:"client_cert_file"`
	ClientKeyFile      string `mapstructure:"client_key_file"`
}

// AWSMSKConfig contains AWS MSK IAM authentication settings
type AWSMSKConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Region  string `mapstructure:"region"`
}

// ConsumerConfig contains Kafka consumer configuration
type ConsumerConfig struct {
	GroupID             string   `mapstructure:"group_id" validate:"required"`
	Topics              []string `mapstructure:"topics" validate:"required,min=1"`
	AutoOffsetReset     string   `mapstructure:"auto_offset_reset" validate:"oneof=earliest latest"`
	SessionTimeoutMS    int      `mapstructure:"session_timeout_ms" validate:"gt=0"`
	HeartbeatIntervalMS int      `mapstructure:"heartbeat_interval_ms" validate:"gt=0"`
	MaxProcessingTimeMS int      `mapstructure:"max_processing_time_ms" validate:"gt=0"`
	MaxEventBytes       int      `mapstructure:"max_event_bytes" validate:"gte=0"`
}

// DLQConfig contains dead letter queue configuration
type DLQConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	TopicSuffix string `mapstructure:"topic_suffix"`
}

// EngineConfig contains the batching engine settings
type EngineConfig struct {
	Threads               int            `mapstructure:"threads" validate:"gt=0"`
	BufferSize            int            `mapstructure:"buffer_size" validate:"gt=1"`
	AutoFlushMS           int            `mapstructure:"auto_flush_ms" validate:"gte=0"`
	LimiterLevel          string         `mapstructure:"limiter_level" validate:"oneof=global thread per-thread"`
	Strategy              StrategyConfig `mapstructure:"strategy"`
	Retries               int            `mapstructure:"retries" validate:"gte=0"`
	RetryInitialBackoffMS int            `mapstructure:"retry_initial_backoff_ms" validate:"gte=0"`
	RetryMaxBackoffMS     int            `mapstructure:"retry_max_backoff_ms" validate:"gte=0"`
	DrainTimeoutSeconds   int            `mapstructure:"drain_timeout_seconds" validate:"gt=0"`
}

// StrategyConfig selects and parameterizes the admission strategy
type StrategyConfig struct {
	Name          string  `mapstructure:"name" validate:"oneof=unbound interval window token_bucket"`
	IntervalMS    int     `mapstructure:"interval_ms" validate:"gte=0"`
	Occurrence    int     `mapstructure:"occurrence" validate:"gte=0"`
	RatePerSecond float64 `mapstructure:"rate_per_second" validate:"gte=0"`
	Burst         int     `mapstructure:"burst" validate:"gte=0"`
}

// SinkConfig contains the batch destination configuration
type SinkConfig struct {
	Backend       string              `mapstructure:"backend" validate:"oneof=file s3 azure gcs redis mongodb elasticsearch"`
	Format        string              `mapstructure:"format" validate:"oneof=parquet avro ndjson"`
	Compression   string              `mapstructure:"compression"`
	S3            S3Config            `mapstructure:"s3"`
	Azure         AzureConfig         `mapstructure:"azure"`
	GCS           GCSConfig           `mapstructure:"gcs"`
	File          FileConfig          `mapstructure:"file"`
	Redis         RedisConfig         `mapstructure:"redis"`
	MongoDB       MongoDBConfig       `mapstructure:"mongodb"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

// S3Config contains AWS S3 configuration
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	BasePath     string `mapstructure:"base_path"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	SSEEnabled   bool   `mapstructure:"sse_enabled"`
	SSEKMSKeyID  string `mapstructure:"sse_kms_key_id"`
}

// AzureConfig contains Azure Blob Storage configuration
type AzureConfig struct {
	AccountName      string `mapstructure:"account_name"`
	Container        string `mapstructure:"container"`
	BasePath         string `mapstructure:"base_path"`
	ConnectionString string `mapstructure:"connection_string"`
}

// GCSConfig contains Google Cloud Storage configuration
type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	ProjectID       string `mapstructure:"project_id"`
	BasePath        string `mapstructure:"base_path"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`
}

// FileConfig contains local filesystem configuration
type FileConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// RedisConfig contains Redis streams configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// ElasticsearchConfig contains Elasticsearch configuration
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// ParquetConfig contains Parquet format settings
type ParquetConfig struct {
	Compression string `mapstructure:"compression"`
}

// AvroConfig contains Avro format settings
type AvroConfig struct {
	Codec string `mapstructure:"codec"`
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Server  ServerConfig  `mapstructure:"server"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string        `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string        `mapstructure:"format" validate:"oneof=json console"`
	Output string        `mapstructure:"output" validate:"oneof=stdout stderr file"`
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig contains log file rotation settings
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// ServerConfig contains the admin HTTP server settings
type ServerConfig struct {
	Port          int    `mapstructure:"port" validate:"min=1,max=65535"`
	Mode          string `mapstructure:"mode" validate:"oneof=debug release test"`
	LivenessPath  string `mapstructure:"liveness_path"`
	ReadinessPath string `mapstructure:"readiness_path"`
}

// ShutdownConfig contains shutdown settings
type ShutdownConfig struct {
	GracePeriodSeconds int `mapstructure:"grace_period_seconds" validate:"gt=0"`
}

// AutoFlush returns the auto-flush delay.
func (c EngineConfig) AutoFlush() time.Duration {
	return time.Duration(c.AutoFlushMS) * time.Millisecond
}

// DrainTimeout returns how long shutdown waits for in-flight batches.
func (c EngineConfig) DrainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutSeconds) * time.Second
}

// GracePeriod returns the shutdown grace period.
func (c ShutdownConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// DLQTopic returns the dead letter topic for a source topic.
func (c DLQConfig) DLQTopic(topic string) string {
	return topic + c.TopicSuffix
}

// Validate validates S3 configuration.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region is required")
	}
	return nil
}

// Validate validates Azure configuration.
func (c *AzureConfig) Validate() error {
	if c.AccountName == "" && c.ConnectionString == "" {
		return fmt.Errorf("azure account name or connection string is required")
	}
	if c.Container == "" {
		return fmt.Errorf("azure container is required")
	}
	return nil
}

// Validate validates GCS configuration.
func (c *GCSConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("gcs bucket is required")
	}
	return nil
}

// Validate validates file configuration.
func (c *FileConfig) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("file base path is required")
	}
	return nil
}

// Validate validates Redis configuration.
func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if c.Stream == "" {
		return fmt.Errorf("redis stream is required")
	}
	return nil
}

// Validate validates MongoDB configuration.
func (c *MongoDBConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("mongodb uri is required")
	}
	if c.Database == "" || c.Collection == "" {
		return fmt.Errorf("mongodb database and collection are required")
	}
	return nil
}

// Validate validates Elasticsearch configuration.
func (c *ElasticsearchConfig) Validate() error {
	if len(c.Addresses) == 0 {
		return fmt.Errorf("elasticsearch addresses are required")
	}
	if c.Index == "" {
		return fmt.Errorf("elasticsearch index is required")
	}
	return nil
}
