// Command resistord consumes CloudEvents from Kafka and writes them in
// batches to a sink, with a bounded number of concurrent writes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jittakal/resistor/internal/config"
	"github.com/jittakal/resistor/internal/config/dto"
	"github.com/jittakal/resistor/internal/kafka"
	"github.com/jittakal/resistor/internal/observability"
	"github.com/jittakal/resistor/internal/pipeline"
	"github.com/jittakal/resistor/internal/server"
	"github.com/jittakal/resistor/internal/sink"
	"github.com/jittakal/resistor/internal/validator"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = os.Getenv("CONFIG_PATH")
	}
	if cfgPath == "" {
		cfgPath = "config/application.yaml"
	}

	cfg, err := config.NewLoader().Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging := cfg.Observability.Logging
	logger, level := observability.NewLogger(observability.LoggingConfig{
		Level:      logging.Level,
		Format:     logging.Format,
		Output:     logging.Output,
		FilePath:   logging.File.Path,
		MaxSizeMB:  logging.File.MaxSizeMB,
		MaxBackups: logging.File.MaxBackups,
		MaxAgeDays: logging.File.MaxAgeDays,
		Compress:   logging.File.Compress,
	})
	defer func() { _ = logger.Sync() }()

	logger.Info("starting resistord",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("environment", cfg.Application.Environment),
		zap.String("sink", cfg.Sink.Backend),
		zap.String("format", cfg.Sink.Format),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	namespace := cfg.Observability.Metrics.Namespace
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(namespace, registry)

	sec := kafka.SecurityFromConfig(cfg.Kafka)

	sk, err := sink.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}

	var (
		dlq       kafka.DeadLetterer
		publisher *kafka.DLQPublisher
	)
	if cfg.Kafka.DLQ.Enabled {
		producer, err := kafka.NewSyncProducer(cfg.Kafka.BootstrapServers, cfg.Application.Name+"-dlq", sec)
		if err != nil {
			return fmt.Errorf("failed to create DLQ producer: %w", err)
		}
		publisher = kafka.NewDLQPublisher(producer, cfg.Kafka.DLQ.TopicSuffix, processorID(cfg), logger, metrics)
		dlq = publisher
	}

	// Batch writes run on their own context so a signal does not abort the drain.
	engineCtx, cancelEngine := context.WithCancel(context.Background())
	defer cancelEngine()

	opts, err := pipeline.EngineOptions(engineCtx, cfg.Engine)
	if err != nil {
		return fmt.Errorf("invalid engine configuration: %w", err)
	}
	pipe, err := pipeline.New(sk, cfg.Sink.Format, dlq, metrics, logger, opts...)
	if err != nil {
		return err
	}
	registry.MustRegister(observability.NewEngineCollector(namespace, pipe.Analytics))

	consumer, err := kafka.NewConsumer(
		consumerConfig(cfg, sec),
		pipe,
		validator.NewCloudEventsValidator(cfg.Kafka.Consumer.MaxEventBytes),
		dlq,
		metrics,
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	health := server.NewHealth()
	health.Register("kafka", func(context.Context) error {
		if !consumer.Ready() {
			return errors.New("no active consumer session")
		}
		return nil
	})

	var gatherer prometheus.Gatherer
	if cfg.Observability.Metrics.Enabled {
		gatherer = registry
	}
	srvCfg := cfg.Observability.Server
	srv := server.NewServer(server.Config{
		Port:          srvCfg.Port,
		Mode:          srvCfg.Mode,
		LivenessPath:  srvCfg.LivenessPath,
		ReadinessPath: srvCfg.ReadinessPath,
		MetricsPath:   cfg.Observability.Metrics.Path,
	}, health, pipe, gatherer, &level, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")
		health.MarkStopping()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.GracePeriod())
		defer cancel()
		return shutdown(shutdownCtx, cfg.Engine.DrainTimeout(), consumer, pipe, publisher, srv, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error("resistord stopped with error", zap.Error(err))
		return err
	}
	logger.Info("resistord stopped", zap.Any("analytics", pipe.Analytics()))
	return nil
}

// shutdown stops intake first so that every pushed record is flushed before
// the sink and the DLQ producer close. Closing the consumer commits the
// marked offsets before the drain, so records still buffered are lost if the
// process dies during the drain.
func shutdown(
	ctx context.Context,
	drainTimeout time.Duration,
	consumer *kafka.Consumer,
	pipe *pipeline.Pipeline,
	publisher *kafka.DLQPublisher,
	srv *server.Server,
	logger *zap.Logger,
) error {
	var errs []error
	if err := consumer.Close(); err != nil {
		errs = append(errs, err)
	}

	drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	if err := pipe.Shutdown(drainCtx); err != nil {
		errs = append(errs, err)
	}

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close DLQ publisher: %w", err))
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		logger.Error("shutdown completed with errors", zap.Errors("errors", errs))
	}
	return errors.Join(errs...)
}

func consumerConfig(cfg *dto.ApplicationConfig, sec kafka.SecurityConfig) kafka.ConsumerConfig {
	cc := cfg.Kafka.Consumer
	return kafka.ConsumerConfig{
		Brokers:           cfg.Kafka.BootstrapServers,
		GroupID:           cc.GroupID,
		Topics:            cc.Topics,
		ClientID:          cfg.Application.Name,
		AutoOffsetReset:   cc.AutoOffsetReset,
		SessionTimeout:    time.Duration(cc.SessionTimeoutMS) * time.Millisecond,
		HeartbeatInterval: time.Duration(cc.HeartbeatIntervalMS) * time.Millisecond,
		MaxProcessingTime: time.Duration(cc.MaxProcessingTimeMS) * time.Millisecond,
		Security:          sec,
	}
}

func processorID(cfg *dto.ApplicationConfig) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return cfg.Application.Name + "@" + host
}
