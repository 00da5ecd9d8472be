package publisher

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/sensor-dashboard/internal/config"
)

// writeCA writes a throwaway self-signed CA certificate into the test's
// temp dir and returns its path.
func writeCA(t *testing.T) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "sensor-dashboard test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating cert: %v", err)
	}
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatalf("writing CA: %v", err)
	}
	return path
}

func baseMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker:   "tcp://broker.lan:1883",
		ClientID: "sensor-dashboard-test",
		QOS:      1,
	}
}

func TestClientOptions_Will(t *testing.T) {
	will := Will{Topic: "sensors/nas/status", Payload: `{"online":false}`}
	opts, err := clientOptions(baseMQTTConfig(), will, nil)
	if err != nil {
		t.Fatalf("clientOptions: %v", err)
	}
	if !opts.WillEnabled {
		t.Fatal("will should be enabled")
	}
	if opts.WillTopic != will.Topic {
		t.Errorf("WillTopic = %q, want %q", opts.WillTopic, will.Topic)
	}
	if string(opts.WillPayload) != will.Payload {
		t.Errorf("WillPayload = %q", opts.WillPayload)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will retained=%v qos=%d, want retained qos 1", opts.WillRetained, opts.WillQos)
	}
}

func TestClientOptions_NoWill(t *testing.T) {
	opts, err := clientOptions(baseMQTTConfig(), Will{}, nil)
	if err != nil {
		t.Fatalf("clientOptions: %v", err)
	}
	if opts.WillEnabled {
		t.Error("an empty Will should not register a last will")
	}
}

func TestClientOptions_Connection(t *testing.T) {
	cfg := baseMQTTConfig()
	cfg.Username = "dash"
	cfg.Password = "hunter2"
	opts, err := clientOptions(cfg, Will{}, nil)
	if err != nil {
		t.Fatalf("clientOptions: %v", err)
	}
	if len(opts.Servers) != 1 || opts.Servers[0].Host != "broker.lan:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != cfg.ClientID {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "dash" || opts.Password != "hunter2" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("AutoReconnect and CleanSession should be set")
	}
	if opts.TLSConfig != nil && opts.TLSConfig.RootCAs != nil {
		t.Error("no CA configured, RootCAs should be unset")
	}
}

func TestClientOptions_TLS(t *testing.T) {
	cfg := baseMQTTConfig()
	cfg.Broker = "ssl://broker.lan:8883"
	cfg.TLSCACert = writeCA(t)
	opts, err := clientOptions(cfg, Will{}, nil)
	if err != nil {
		t.Fatalf("clientOptions: %v", err)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.RootCAs == nil {
		t.Fatal("expected TLS config with RootCAs")
	}
	if opts.TLSConfig.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", opts.TLSConfig.MinVersion)
	}
}

func TestNewTLSConfig_Errors(t *testing.T) {
	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}
	for name, path := range map[string]string{
		"missing file": "/nonexistent/ca.pem",
		"no PEM":       garbage,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := newTLSConfig(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

// TestNewMQTTPublisher_BadCA fails before any network dial.
func TestNewMQTTPublisher_BadCA(t *testing.T) {
	cfg := baseMQTTConfig()
	cfg.TLSCACert = "/nonexistent/ca.pem"
	if _, err := NewMQTTPublisher(cfg, Will{Topic: "sensors/test/status"}, nil); err == nil {
		t.Fatal("expected error when the CA bundle cannot be read")
	}
}
