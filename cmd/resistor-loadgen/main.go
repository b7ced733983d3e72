// Command resistor-loadgen produces fake CloudEvents to Kafka.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jittakal/resistor/internal/config"
	"github.com/jittakal/resistor/internal/kafka"
	"github.com/jittakal/resistor/internal/loadgen"
	"github.com/jittakal/resistor/internal/observability"
	"github.com/jittakal/resistor/internal/server"
)

var (
	configFile   = flag.String("config", getEnv("CONFIG_PATH", ""), "resistord configuration file to take brokers, security and topic from")
	brokers      = flag.String("brokers", getEnv("KAFKA_BROKERS", "localhost:9092"), "comma separated bootstrap servers")
	topic        = flag.String("topic", getEnv("TOPIC", ""), "destination topic")
	mode         = flag.String("mode", "binary", "content mode: binary or structured")
	rate         = flag.Float64("rate", 100, "messages per second, 0 for unlimited")
	count        = flag.Int("count", 0, "messages to send, 0 to run until interrupted")
	batchSize    = flag.Int("batch", 10, "messages per producer call")
	invalidRatio = flag.Float64("invalid-ratio", 0, "share of messages that are not CloudEvents")
	logLevel     = flag.String("log-level", getEnv("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	metricsPort  = flag.Int("metrics-port", 9091, "port serving /metrics, 0 to disable")
)

func main() {
	flag.Parse()

	logger, level := observability.NewLogger(observability.LoggingConfig{Level: *logLevel, Format: "console", Output: "stderr"})
	defer func() { _ = logger.Sync() }()

	if err := run(logger, &level); err != nil {
		logger.Fatal("load generator failed", zap.Error(err))
	}
}

func run(logger *zap.Logger, level *zap.AtomicLevel) error {
	brokerList := strings.Split(*brokers, ",")
	var sec kafka.SecurityConfig
	dest := *topic

	if *configFile != "" {
		cfg, err := config.NewLoader().Load(*configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		brokerList = cfg.Kafka.BootstrapServers
		sec = kafka.SecurityFromConfig(cfg.Kafka)
		if dest == "" {
			dest = cfg.Kafka.Consumer.Topics[0]
		}
	}
	if dest == "" {
		return fmt.Errorf("a topic is required")
	}

	producer, err := kafka.NewSyncProducer(brokerList, "resistor-loadgen", sec)
	if err != nil {
		return err
	}
	defer func() { _ = producer.Close() }()

	registry := prometheus.NewRegistry()
	metrics := loadgen.NewMetrics(registry)

	if *metricsPort > 0 {
		srv := server.NewServer(server.Config{Port: *metricsPort, Mode: "release"}, server.NewHealth(), nil, registry, level, logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("producing events",
		zap.Strings("brokers", brokerList),
		zap.String("topic", dest),
		zap.String("mode", *mode),
		zap.Float64("rate", *rate),
		zap.Int("count", *count),
	)

	generator := loadgen.NewGenerator(loadgen.GeneratorConfig{InvalidRatio: *invalidRatio})
	runner := loadgen.NewRunner(producer, generator, metrics, logger)

	start := time.Now()
	sent, err := runner.Run(ctx, loadgen.RunConfig{
		Topic:     dest,
		Mode:      loadgen.Mode(*mode),
		Rate:      *rate,
		Count:     *count,
		BatchSize: *batchSize,
	})
	logger.Info("load generator finished", zap.Int("sent", sent), zap.Duration("elapsed", time.Since(start)))
	return err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
