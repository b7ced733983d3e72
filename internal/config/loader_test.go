package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jittakal/resistor/internal/config/dto"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test config file: %v", err)
	}
	return path
}

const minimalConfig = `
application:
  name: test-app

kafka:
  bootstrap_servers:
    - localhost:9092
  consumer:
    group_id: test-group
    topics:
      - test-topic

sink:
  backend: file
  format: parquet
  file:
    base_path: /tmp/test
`

func TestLoader_LoadWithValidConfig(t *testing.T) {
	config, err := NewLoader().Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.Application.Name != "test-app" {
		t.Errorf("Application.Name = %s, want test-app", config.Application.Name)
	}
	if config.Kafka.Consumer.GroupID != "test-group" {
		t.Errorf("Kafka.Consumer.GroupID = %s, want test-group", config.Kafka.Consumer.GroupID)
	}
	if len(config.Kafka.Consumer.Topics) != 1 || config.Kafka.Consumer.Topics[0] != "test-topic" {
		t.Errorf("Kafka.Consumer.Topics = %v, want [test-topic]", config.Kafka.Consumer.Topics)
	}

	// Defaults fill everything the file leaves out.
	if config.Engine.Threads != 10 {
		t.Errorf("Engine.Threads = %d, want 10", config.Engine.Threads)
	}
	if config.Engine.BufferSize != 100 {
		t.Errorf("Engine.BufferSize = %d, want 100", config.Engine.BufferSize)
	}
	if config.Engine.Strategy.Name != "unbound" {
		t.Errorf("Engine.Strategy.Name = %s, want unbound", config.Engine.Strategy.Name)
	}
	if config.Observability.Server.Port != 8080 {
		t.Errorf("Observability.Server.Port = %d, want 8080", config.Observability.Server.Port)
	}
	if got := config.Kafka.DLQ.DLQTopic("orders"); got != "orders-dlq" {
		t.Errorf("DLQTopic() = %s, want orders-dlq", got)
	}
}

func TestLoader_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_SINK_DIR", "/var/lib/resistor")

	config, err := NewLoader().Load(writeConfig(t, `
application:
  name: test-app
kafka:
  bootstrap_servers: [localhost:9092]
  consumer:
    group_id: test-group
    topics: [test-topic]
engine:
  threads: 4
sink:
  backend: file
  format: avro
  file:
    base_path: ${TEST_SINK_DIR}/batches
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config.Sink.File.BasePath != "/var/lib/resistor/batches" {
		t.Errorf("Sink.File.BasePath = %s, want /var/lib/resistor/batches", config.Sink.File.BasePath)
	}
	if config.Engine.Threads != 4 {
		t.Errorf("Engine.Threads = %d, want 4", config.Engine.Threads)
	}
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("RESISTOR_ENGINE_BUFFER_SIZE", "250")

	config, err := NewLoader().Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config.Engine.BufferSize != 250 {
		t.Errorf("Engine.BufferSize = %d, want 250", config.Engine.BufferSize)
	}
}

func TestLoader_LoadWithMissingFileFailsValidation(t *testing.T) {
	_, err := NewLoader().Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() error = nil, want validation error for missing kafka settings")
	}
}

// validConfig returns a configuration that passes Validate after loading defaults.
func validConfig(t *testing.T) *dto.ApplicationConfig {
	t.Helper()

	config, err := NewLoader().Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return config
}

func TestLoader_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *dto.ApplicationConfig)
		wantErr bool
	}{
		{
			name:    "valid file backend config",
			mutate:  func(*dto.ApplicationConfig) {},
			wantErr: false,
		},
		{
			name:    "missing bootstrap servers",
			mutate:  func(c *dto.ApplicationConfig) { c.Kafka.BootstrapServers = nil },
			wantErr: true,
		},
		{
			name:    "missing consumer topics",
			mutate:  func(c *dto.ApplicationConfig) { c.Kafka.Consumer.Topics = []string{} },
			wantErr: true,
		},
		{
			name:    "missing consumer group id",
			mutate:  func(c *dto.ApplicationConfig) { c.Kafka.Consumer.GroupID = "" },
			wantErr: true,
		},
		{
			name: "sasl without username",
			mutate: func(c *dto.ApplicationConfig) {
				c.Kafka.SecurityProtocol = "SASL_SSL"
				c.Kafka.SASLMechanism = "SCRAM-SHA-512"
			},
			wantErr: true,
		},
		{
			name: "msk iam without region",
			mutate: func(c *dto.ApplicationConfig) {
				c.Kafka.SecurityProtocol = "SASL_SSL"
				c.Kafka.SASLMechanism = "AWS_MSK_IAM"
				c.Kafka.AWSMSK.Enabled = true
			},
			wantErr: true,
		},
		{
			name: "s3 backend missing bucket",
			mutate: func(c *dto.ApplicationConfig) {
				c.Sink.Backend = "s3"
				c.Sink.S3.Region = "us-east-1"
			},
			wantErr: true,
		},
		{
			name: "azure backend with connection string",
			mutate: func(c *dto.ApplicationConfig) {
				c.Sink.Backend = "azure"
				c.Sink.Azure.ConnectionString = "UseDevelopmentStorage=true"
				c.Sink.Azure.Container = "batches"
			},
			wantErr: false,
		},
		{
			name:    "redis backend missing stream",
			mutate:  func(c *dto.ApplicationConfig) { c.Sink.Backend = "redis"; c.Sink.Redis.Addr = "localhost:6379" },
			wantErr: true,
		},
		{
			name:    "elasticsearch backend missing addresses",
			mutate:  func(c *dto.ApplicationConfig) { c.Sink.Backend = "elasticsearch" },
			wantErr: true,
		},
		{
			name:    "unsupported sink backend",
			mutate:  func(c *dto.ApplicationConfig) { c.Sink.Backend = "ftp" },
			wantErr: true,
		},
		{
			name:    "unsupported sink format",
			mutate:  func(c *dto.ApplicationConfig) { c.Sink.Format = "csv" },
			wantErr: true,
		},
		{
			name:    "zero threads",
			mutate:  func(c *dto.ApplicationConfig) { c.Engine.Threads = 0 },
			wantErr: true,
		},
		{
			name:    "single record buffer",
			mutate:  func(c *dto.ApplicationConfig) { c.Engine.BufferSize = 1 },
			wantErr: true,
		},
		{
			name:    "unknown strategy",
			mutate:  func(c *dto.ApplicationConfig) { c.Engine.Strategy.Name = "leaky" },
			wantErr: true,
		},
		{
			name: "window strategy without occurrence",
			mutate: func(c *dto.ApplicationConfig) {
				c.Engine.Strategy.Name = "window"
				c.Engine.Strategy.Occurrence = 0
			},
			wantErr: true,
		},
		{
			name:    "invalid server port",
			mutate:  func(c *dto.ApplicationConfig) { c.Observability.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name: "file logging without path",
			mutate: func(c *dto.ApplicationConfig) {
				c.Observability.Logging.Output = "file"
				c.Observability.Logging.File.Path = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig(t)
			tt.mutate(config)

			err := NewLoader().Validate(config)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_setDefaults(t *testing.T) {
	loader := NewLoader()
	loader.setDefaults()

	tests := []struct {
		key  string
		want string
	}{
		{"application.name", "resistord"},
		{"sink.backend", "file"},
		{"sink.format", "parquet"},
		{"engine.limiter_level", "global"},
		{"kafka.dlq.topic_suffix", "-dlq"},
	}
	for _, tt := range tests {
		if got := loader.v.GetString(tt.key); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.key, got, tt.want)
		}
	}
}
