package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for twinprov.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Platform Platform      `yaml:"platform"`
	Auth     AuthConfig    `yaml:"auth"`
	HTTP     HTTPConfig    `yaml:"http"`
	Journal  JournalConfig `yaml:"journal"`
	MQTT     MQTTConfig    `yaml:"mqtt"`
	Logging  LoggingConfig `yaml:"logging"`
}

// Platform contains the FIWARE platform endpoints and tenancy scope.
type Platform struct {
	// KeystoneURL is the base URL of the identity service, e.g. "https://idm.example.com:5001".
	KeystoneURL string `yaml:"keystone_url"`

	// ContextBrokerURL is the base URL of the Orion Context Broker (NGSI v2).
	ContextBrokerURL string `yaml:"context_broker_url"`

	// IoTAgentURL is the base URL of the IoT-Agent north port.
	IoTAgentURL string `yaml:"iot_agent_url"`

	// Service and Subservice scope every request via the
	// Fiware-Service / Fiware-ServicePath headers.
	Service    string `yaml:"service"`
	Subservice string `yaml:"subservice"`

	// DefaultProtocol is used for rows that do not carry a protocol column.
	// Typical values: "IoTA-JSON", "IoTA-UL".
	DefaultProtocol string `yaml:"default_protocol"`
}

// AuthConfig contains the credentials exchanged for a scoped token.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// HTTPConfig contains outbound HTTP client settings.
type HTTPConfig struct {
	// TimeoutSeconds bounds every provisioning request. Default: 30.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// InsecureSkipVerify disables TLS certificate verification.
	// Lab deployments of the platform use self-signed certificates.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// JournalConfig contains the provisioning run journal settings.
type JournalConfig struct {
	// Enabled toggles recording of run outcomes. Default: true.
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file. Default: "./data/twinprov.db".
	Path string `yaml:"path"`
}

// MQTTConfig contains MQTT broker connection settings for the
// measurement publisher (twinprov simulate).
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth"`
	QoS    int              `yaml:"qos"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TWINPROV_SECTION_KEY
// For example: TWINPROV_AUTH_PASSWORD, TWINPROV_PLATFORM_SERVICE
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Platform: Platform{
			Subservice:      "/",
			DefaultProtocol: "IoTA-UL",
		},
		HTTP: HTTPConfig{
			TimeoutSeconds: 30,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    "./data/twinprov.db",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "twinprov",
			},
			QoS: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TWINPROV_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Platform
	if v := os.Getenv("TWINPROV_PLATFORM_KEYSTONE_URL"); v != "" {
		cfg.Platform.KeystoneURL = v
	}
	if v := os.Getenv("TWINPROV_PLATFORM_CONTEXT_BROKER_URL"); v != "" {
		cfg.Platform.ContextBrokerURL = v
	}
	if v := os.Getenv("TWINPROV_PLATFORM_IOT_AGENT_URL"); v != "" {
		cfg.Platform.IoTAgentURL = v
	}
	if v := os.Getenv("TWINPROV_PLATFORM_SERVICE"); v != "" {
		cfg.Platform.Service = v
	}
	if v := os.Getenv("TWINPROV_PLATFORM_SUBSERVICE"); v != "" {
		cfg.Platform.Subservice = v
	}
	if v := os.Getenv("TWINPROV_PLATFORM_PROTOCOL"); v != "" {
		cfg.Platform.DefaultProtocol = v
	}

	// Credentials: prefer environment over the config file
	if v := os.Getenv("TWINPROV_AUTH_USERNAME"); v != "" {
		cfg.Auth.Username = v
	}
	if v := os.Getenv("TWINPROV_AUTH_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}

	// Journal
	if v := os.Getenv("TWINPROV_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}

	// MQTT
	if v := os.Getenv("TWINPROV_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TWINPROV_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TWINPROV_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Logging
	if v := os.Getenv("TWINPROV_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Platform.KeystoneURL == "" {
		errs = append(errs, "platform.keystone_url is required")
	}
	if c.Platform.ContextBrokerURL == "" {
		errs = append(errs, "platform.context_broker_url is required")
	}
	if c.Platform.IoTAgentURL == "" {
		errs = append(errs, "platform.iot_agent_url is required")
	}
	if c.Platform.Service == "" {
		errs = append(errs, "platform.service is required")
	}
	if !strings.HasPrefix(c.Platform.Subservice, "/") {
		errs = append(errs, "platform.subservice must start with '/'")
	}

	if c.Auth.Username == "" {
		errs = append(errs, "auth.username is required (set TWINPROV_AUTH_USERNAME environment variable)")
	}
	if c.Auth.Password == "" {
		errs = append(errs, "auth.password is required (set TWINPROV_AUTH_PASSWORD environment variable)")
	}

	if c.HTTP.TimeoutSeconds <= 0 {
		errs = append(errs, "http.timeout_seconds must be positive")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// RequestTimeout returns the outbound HTTP timeout as a Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
