// Package kafka connects resistord to Kafka: the consumer group feeding the
// engine, the dead letter publisher and the load generator producer.
package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/IBM/sarama"
	"github.com/aws/aws-msk-iam-sasl-signer-go/signer"

	"github.com/jittakal/resistor/internal/config/dto"
)

// SecurityConfig describes how clients authenticate to the brokers.
type SecurityConfig struct {
	Protocol      string
	SASLMechanism string
	Username      string
	Password      string

	TLSEnabled         bool
	InsecureSkipVerify bool
	CACertFile         string
	ClientCertFile     string
	ClientKeyFile      string

	// MSKRegion is used to sign AWS_MSK_IAM tokens.
	MSKRegion string
}

// SecurityFromConfig maps the kafka configuration section. An enabled MSK
// section selects AWS_MSK_IAM.
func SecurityFromConfig(cfg dto.KafkaConfig) SecurityConfig {
	sec := SecurityConfig{
		Protocol:           cfg.SecurityProtocol,
		SASLMechanism:      cfg.SASLMechanism,
		Username:           cfg.SASLUsername,
		Password:           cfg.SASLPassword,
		TLSEnabled:         cfg.TLS.Enabled,
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		CACertFile:         cfg.TLS.CACertFile,
		ClientCertFile:     cfg.TLS.ClientCertFile,
		ClientKeyFile:      cfg.TLS.ClientKeyFile,
	}
	if cfg.AWSMSK.Enabled {
		sec.SASLMechanism = "AWS_MSK_IAM"
		sec.MSKRegion = cfg.AWSMSK.Region
	}
	return sec
}

// NewSaramaConfig returns the base client configuration shared by consumers
// and producers.
func NewSaramaConfig(clientID string, sec SecurityConfig) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_8_0_0
	if clientID != "" {
		cfg.ClientID = clientID
	}
	if err := configureSecurity(cfg, sec); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}
	return cfg, nil
}

func configureSecurity(cfg *sarama.Config, sec SecurityConfig) error {
	switch sec.Protocol {
	case "", "PLAINTEXT":
		return nil
	case "SSL":
		return configureTLS(cfg, sec)
	case "SASL_PLAINTEXT", "SASL_SSL":
	default:
		return fmt.Errorf("unsupported security protocol: %s", sec.Protocol)
	}

	cfg.Net.SASL.Enable = true
	cfg.Net.SASL.User = sec.Username
	cfg.Net.SASL.Password = sec.Password

	switch sec.SASLMechanism {
	case "PLAIN":
		cfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
	case "SCRAM-SHA-256":
		cfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		cfg.Net.SASL.SCRAMClientGeneratorFunc = scramGenerator(SHA256)
	case "SCRAM-SHA-512":
		cfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		cfg.Net.SASL.SCRAMClientGeneratorFunc = scramGenerator(SHA512)
	case "AWS_MSK_IAM":
		if sec.MSKRegion == "" {
			return fmt.Errorf("AWS_MSK_IAM requires a region")
		}
		cfg.Net.SASL.Mechanism = sarama.SASLTypeOAuth
		cfg.Net.SASL.TokenProvider = &MSKAccessTokenProvider{Region: sec.MSKRegion}
	default:
		return fmt.Errorf("unsupported SASL mechanism: %s", sec.SASLMechanism)
	}

	if sec.Protocol == "SASL_SSL" || sec.TLSEnabled {
		return configureTLS(cfg, sec)
	}
	return nil
}

func configureTLS(cfg *sarama.Config, sec SecurityConfig) error {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: sec.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed brokers
	}

	if sec.CACertFile != "" {
		pem, err := os.ReadFile(sec.CACertFile)
		if err != nil {
			return fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return fmt.Errorf("no certificates found in %s", sec.CACertFile)
		}
		tlsConfig.RootCAs = pool
	}

	if sec.ClientCertFile != "" || sec.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(sec.ClientCertFile, sec.ClientKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	cfg.Net.TLS.Enable = true
	cfg.Net.TLS.Config = tlsConfig
	return nil
}

// MSKAccessTokenProvider implements sarama.AccessTokenProvider for AWS MSK
// IAM authentication using the default AWS credential chain.
type MSKAccessTokenProvider struct {
	Region string
}

// Token generates a signed MSK IAM token.
func (m *MSKAccessTokenProvider) Token() (*sarama.AccessToken, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, _, err := signer.GenerateAuthToken(ctx, m.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to generate MSK IAM token: %w", err)
	}
	return &sarama.AccessToken{Token: token}, nil
}

// offsetInitial converts auto_offset_reset to Sarama's offset constant.
func offsetInitial(autoOffsetReset string) int64 {
	if autoOffsetReset == "earliest" {
		return sarama.OffsetOldest
	}
	return sarama.OffsetNewest
}
