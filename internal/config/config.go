// Package config loads and merges configuration from a TOML file and
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SENSOR_DASHBOARD_"

// Duration wraps time.Duration so that BurntSushi/toml can decode "30s"-style
// strings via the encoding.TextUnmarshaler interface.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host         string   `toml:"host"`
	Port         int      `toml:"port"`
	PollInterval Duration `toml:"poll_interval"`
	// MaxConcurrentCommands caps simultaneous subprocesses; 0 is unlimited.
	MaxConcurrentCommands int64 `toml:"max_concurrent_commands"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CommandsConfig holds the diagnostic command lines and their limits.
type CommandsConfig struct {
	Timeout        Duration `toml:"timeout"`
	MaxOutputBytes int      `toml:"max_output_bytes"`
	Sensors        []string `toml:"sensors"`
	Disk           []string `toml:"disk"`
	CPU            []string `toml:"cpu"`
}

// DashboardConfig holds the card highlight thresholds.
type DashboardConfig struct {
	TemperatureWarning float64 `toml:"temperature_warning"`
	UsageWarning       float64 `toml:"usage_warning"`
	WarnOnStoppedFan   bool    `toml:"warn_on_stopped_fan"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NUTConfig holds Network UPS Tools client settings.
type NUTConfig struct {
	Enabled  bool   `toml:"enabled"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	UPSName  string `toml:"ups_name"`
}

// MQTTConfig holds MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool   `toml:"enabled"`
	Broker      string `toml:"broker"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	ClientID    string `toml:"client_id"`
	TopicPrefix string `toml:"topic_prefix"`
	Retained    bool   `toml:"retained"`
	QOS         byte   `toml:"qos"`
	TLSCACert   string `toml:"tls_ca_cert"`
}

// Config is the top-level configuration struct.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Commands  CommandsConfig  `toml:"commands"`
	Dashboard DashboardConfig `toml:"dashboard"`
	Log       LogConfig       `toml:"log"`
	NUT       NUTConfig       `toml:"nut"`
	MQTT      MQTTConfig      `toml:"mqtt"`
}

// Load reads config from the first existing path in paths, then applies
// environment variable overrides.  Missing files are skipped silently;
// a malformed file returns an error.  Calling Load() with no arguments
// returns pure defaults plus any env overrides.
func Load(paths ...string) (*Config, error) {
	cfg := defaults()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %q: %w", path, err)
			}
			break // first found file wins
		} else if !os.IsNotExist(statErr) {
			return nil, fmt.Errorf("checking config path %q: %w", path, statErr)
		}
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         3004,
			PollInterval: Duration{5 * time.Second},
		},
		Commands: CommandsConfig{
			Timeout:        Duration{5 * time.Second},
			MaxOutputBytes: 1 << 20,
			Sensors:        []string{"sensors"},
			Disk:           []string{"df", "-hP", "/"},
			CPU:            []string{"top", "-bn1"},
		},
		Dashboard: DashboardConfig{
			TemperatureWarning: 60,
			UsageWarning:       80,
			WarnOnStoppedFan:   true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		NUT: NUTConfig{
			Host:    "localhost",
			Port:    3493,
			UPSName: "ups",
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "sensor-dashboard",
			TopicPrefix: "sensors",
			Retained:    true,
			QOS:         1,
		},
	}
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.PollInterval.Duration <= 0 {
		errs = append(errs, errors.New("server.poll_interval must be positive"))
	}
	if c.Server.MaxConcurrentCommands < 0 {
		errs = append(errs, errors.New("server.max_concurrent_commands must not be negative"))
	}
	if c.Commands.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("commands.timeout must be positive"))
	}
	for name, argv := range map[string][]string{
		"sensors": c.Commands.Sensors,
		"disk":    c.Commands.Disk,
		"cpu":     c.Commands.CPU,
	} {
		if len(argv) == 0 || argv[0] == "" {
			errs = append(errs, fmt.Errorf("commands.%s must name a program", name))
		}
	}
	if c.MQTT.QOS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", c.MQTT.QOS))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyEnvOverrides copies any set SENSOR_DASHBOARD_* environment variables
// into cfg. The bare PORT variable is honoured last.
func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			} else {
				slog.Warn("config: ignoring invalid override", "var", EnvPrefix+key, "value", v, "err", err)
			}
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			} else {
				slog.Warn("config: ignoring invalid override", "var", EnvPrefix+key, "value", v, "err", err)
			}
		}
	}
	duration := func(key string, dst *Duration) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = Duration{d}
			} else {
				slog.Warn("config: ignoring invalid override", "var", EnvPrefix+key, "value", v, "err", err)
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}
	argv := func(key string, dst *[]string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = strings.Fields(v)
		}
	}

	str("SERVER_HOST", &cfg.Server.Host)
	integer("SERVER_PORT", &cfg.Server.Port)
	duration("SERVER_POLL_INTERVAL", &cfg.Server.PollInterval)
	if v := os.Getenv(EnvPrefix + "SERVER_MAX_CONCURRENT_COMMANDS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MaxConcurrentCommands = n
		} else {
			slog.Warn("config: ignoring invalid override", "var", EnvPrefix+"SERVER_MAX_CONCURRENT_COMMANDS", "value", v, "err", err)
		}
	}

	duration("COMMANDS_TIMEOUT", &cfg.Commands.Timeout)
	integer("COMMANDS_MAX_OUTPUT_BYTES", &cfg.Commands.MaxOutputBytes)
	argv("COMMANDS_SENSORS", &cfg.Commands.Sensors)
	argv("COMMANDS_DISK", &cfg.Commands.Disk)
	argv("COMMANDS_CPU", &cfg.Commands.CPU)

	float("DASHBOARD_TEMPERATURE_WARNING", &cfg.Dashboard.TemperatureWarning)
	float("DASHBOARD_USAGE_WARNING", &cfg.Dashboard.UsageWarning)
	boolean("DASHBOARD_WARN_ON_STOPPED_FAN", &cfg.Dashboard.WarnOnStoppedFan)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	boolean("NUT_ENABLED", &cfg.NUT.Enabled)
	str("NUT_HOST", &cfg.NUT.Host)
	integer("NUT_PORT", &cfg.NUT.Port)
	str("NUT_USERNAME", &cfg.NUT.Username)
	str("NUT_PASSWORD", &cfg.NUT.Password)
	str("NUT_UPS_NAME", &cfg.NUT.UPSName)

	boolean("MQTT_ENABLED", &cfg.MQTT.Enabled)
	str("MQTT_BROKER", &cfg.MQTT.Broker)
	str("MQTT_USERNAME", &cfg.MQTT.Username)
	str("MQTT_PASSWORD", &cfg.MQTT.Password)
	str("MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	str("MQTT_TOPIC_PREFIX", &cfg.MQTT.TopicPrefix)
	boolean("MQTT_RETAINED", &cfg.MQTT.Retained)
	if v := os.Getenv(EnvPrefix + "MQTT_QOS"); v != "" {
		if q, err := strconv.ParseUint(v, 10, 8); err == nil {
			cfg.MQTT.QOS = byte(q)
		} else {
			slog.Warn("config: ignoring invalid override", "var", EnvPrefix+"MQTT_QOS", "value", v, "err", err)
		}
	}
	str("MQTT_TLS_CA_CERT", &cfg.MQTT.TLSCACert)

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		} else {
			slog.Warn("config: ignoring invalid override", "var", "PORT", "value", v, "err", err)
		}
	}
}
