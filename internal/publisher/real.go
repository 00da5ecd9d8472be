package publisher

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/sensor-dashboard/internal/config"
)

const (
	keepAlive         = 60 * time.Second
	connectTimeout    = 10 * time.Second
	publishTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // ms
)

var errPublishTimeout = errors.New("timed out waiting for broker acknowledgement")

// Will is the retained message the broker publishes on our behalf if the
// connection drops without a clean disconnect.
type Will struct {
	Topic   string
	Payload string
}

// MQTTPublisher wraps paho.mqtt.golang and implements Publisher.
type MQTTPublisher struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
}

// NewMQTTPublisher connects to cfg.Broker with will registered as the last
// will and returns once the broker has accepted the connection.
func NewMQTTPublisher(cfg config.MQTTConfig, will Will, logger *slog.Logger) (*MQTTPublisher, error) {
	opts, err := clientOptions(cfg, will, logger)
	if err != nil {
		return nil, err
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connecting to MQTT broker %q: timed out after %s", cfg.Broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %q: %w", cfg.Broker, err)
	}
	return &MQTTPublisher{client: client, qos: cfg.QOS, timeout: publishTimeout}, nil
}

// clientOptions translates cfg into paho options. It fails only when the
// configured CA bundle cannot be loaded.
func clientOptions(cfg config.MQTTConfig, will Will, logger *slog.Logger) (*mqtt.ClientOptions, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mqtt", "broker", cfg.Broker)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(connectTimeout).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("connection lost", "err", err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("connected")
		}).
		SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
			logger.Debug("reconnecting")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	if will.Topic != "" {
		opts.SetWill(will.Topic, will.Payload, cfg.QOS, true)
	}
	if cfg.TLSCACert != "" {
		tlsCfg, err := newTLSConfig(cfg.TLSCACert)
		if err != nil {
			return nil, fmt.Errorf("loading TLS CA cert %q: %w", cfg.TLSCACert, err)
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

// Publish sends a single MQTT message and waits for the broker to acknowledge.
func (p *MQTTPublisher) Publish(msg Message) error {
	token := p.client.Publish(msg.Topic, p.qos, msg.Retained, msg.Payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("%s: %w", msg.Topic, errPublishTimeout)
	}
	return token.Error()
}

// Close disconnects from the broker. The will is not sent on a clean
// disconnect, so callers publish their own offline status first.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(disconnectQuiesce)
	return nil
}

// newTLSConfig trusts only the PEM certificates in caFile; the system pool
// is not consulted.
func newTLSConfig(caFile string) (*tls.Config, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("reading CA cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no PEM certificates in %q", caFile)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}
