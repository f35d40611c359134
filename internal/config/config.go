package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // reporting timezone must resolve on minimal images

	"github.com/gofrs/uuid"
	"github.com/spf13/viper"

	bridgeerrors "heating-mqtt-bridge/internal/errors"
	"heating-mqtt-bridge/internal/logger"
)

// Storage backends
const (
	StorageMongo  = "mongo"
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// EnvPrefix is prepended to environment overrides, e.g. BRIDGE_MQTT_BROKER
const EnvPrefix = "BRIDGE"

// DefaultDeviceTopic is the topic the gateway listens on for Modbus requests
const DefaultDeviceTopic = "device/sub"

// Config represents the complete application configuration
type Config struct {
	MQTT      MQTTConfig           `yaml:"mqtt" mapstructure:"mqtt"`
	Polling   PollingConfig        `yaml:"polling" mapstructure:"polling"`
	Storage   StorageConfig        `yaml:"storage" mapstructure:"storage"`
	Reporting ReportingConfig      `yaml:"reporting" mapstructure:"reporting"`
	Metrics   MetricsConfig        `yaml:"metrics" mapstructure:"metrics"`
	Logging   logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// MQTTConfig contains MQTT broker and topic settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" mapstructure:"broker"` // e.g. tcp://192.168.1.10:1883
	Username      string `yaml:"username" mapstructure:"username"`
	Password      string `yaml:"password" mapstructure:"password"`
	ClientID      string `yaml:"client_id" mapstructure:"client_id"`
	RetryDelay    int    `yaml:"retry_delay" mapstructure:"retry_delay"` // Delay between connection retries in milliseconds
	KeepAlive     int    `yaml:"keep_alive" mapstructure:"keep_alive"`   // Seconds
	QoS           byte   `yaml:"qos" mapstructure:"qos"`
	DeviceTopic   string `yaml:"device_topic" mapstructure:"device_topic"`     // Outbound Modbus requests
	ResponseTopic string `yaml:"response_topic" mapstructure:"response_topic"` // Inbound Modbus responses
	InboundBuffer int    `yaml:"inbound_buffer" mapstructure:"inbound_buffer"`
}

// PollingConfig contains the two poll cadences in milliseconds
type PollingConfig struct {
	HeaterInterval int `yaml:"heater_interval" mapstructure:"heater_interval"`
	RoomInterval   int `yaml:"room_interval" mapstructure:"room_interval"`
}

// StorageConfig selects and configures the persistence sink
type StorageConfig struct {
	Type     string `yaml:"type" mapstructure:"type"` // mongo, sqlite or memory
	URI      string `yaml:"uri" mapstructure:"uri"`
	Database string `yaml:"database" mapstructure:"database"`
	Path     string `yaml:"path" mapstructure:"path"`
	Timeout  int    `yaml:"timeout" mapstructure:"timeout"` // Per-append timeout in milliseconds
}

// ReportingConfig controls how reading timestamps are expressed
type ReportingConfig struct {
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// Location resolves the configured IANA timezone
func (r ReportingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(r.Timezone)
}

// MetricsConfig controls the /metrics and /health listener. Port 0 disables it.
type MetricsConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.retry_delay", 5000)
	v.SetDefault("mqtt.keep_alive", 60)
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.device_topic", DefaultDeviceTopic)
	v.SetDefault("mqtt.response_topic", "")
	v.SetDefault("mqtt.inbound_buffer", 64)

	v.SetDefault("polling.heater_interval", 10000)
	v.SetDefault("polling.room_interval", 10000)

	v.SetDefault("storage.type", StorageMongo)
	v.SetDefault("storage.uri", "mongodb://localhost:27017")
	v.SetDefault("storage.database", "heating")
	v.SetDefault("storage.path", "heating.db")
	v.SetDefault("storage.timeout", 5000)

	v.SetDefault("reporting.timezone", "Asia/Shanghai")
	v.SetDefault("metrics.port", 0)

	v.SetDefault("logging.level", logger.LogLevelInfo)
	v.SetDefault("logging.format", logger.FormatText)
	v.SetDefault("logging.file", "")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig loads configuration from the given file, falling back to the
// standard locations when configPath is empty. BRIDGE_* environment
// variables override file values.
func LoadConfig(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("/etc/heating-bridge/")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		return nil, fmt.Errorf("cannot find config.yaml in /etc/heating-bridge or the working directory: %w", err)
	}

	config, err := decode(v)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", v.ConfigFileUsed(), err)
	}

	logger.LogInfo("✅ Configuration loaded successfully from %s", v.ConfigFileUsed())
	return config, nil
}

// LoadConfigFromString loads configuration from a YAML string (for testing)
func LoadConfigFromString(yamlContent string) (*Config, error) {
	v := newViper()
	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("error parsing configuration: %w", err)
	}

	config, err := decode(v)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.applyDerived(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDerived fills values computed from other fields
func (c *Config) applyDerived() error {
	if c.MQTT.Broker != "" && !strings.Contains(c.MQTT.Broker, "://") {
		c.MQTT.Broker = "tcp://" + c.MQTT.Broker
	}
	if c.MQTT.ClientID == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("failed to generate client id: %w", err)
		}
		c.MQTT.ClientID = "heating-bridge-" + id.String()[:8]
	}
	c.Storage.Type = strings.ToLower(c.Storage.Type)
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.MQTT.Broker == "" {
		return bridgeerrors.NewConfigError("mqtt.broker", fmt.Errorf("is not specified"))
	}
	if c.MQTT.ResponseTopic == "" {
		return bridgeerrors.NewConfigError("mqtt.response_topic", fmt.Errorf("is not specified"))
	}
	if c.MQTT.DeviceTopic == "" {
		return bridgeerrors.NewConfigError("mqtt.device_topic", fmt.Errorf("must not be empty"))
	}
	if c.MQTT.DeviceTopic == c.MQTT.ResponseTopic {
		return bridgeerrors.NewConfigError("mqtt.response_topic", fmt.Errorf("must differ from mqtt.device_topic"))
	}
	if c.MQTT.QoS > 2 {
		return bridgeerrors.NewConfigError("mqtt.qos", fmt.Errorf("must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	if c.MQTT.RetryDelay <= 0 {
		return bridgeerrors.NewConfigError("mqtt.retry_delay", fmt.Errorf("must be positive"))
	}
	if c.MQTT.KeepAlive < 0 {
		return bridgeerrors.NewConfigError("mqtt.keep_alive", fmt.Errorf("must be non-negative"))
	}
	if c.MQTT.InboundBuffer <= 0 {
		return bridgeerrors.NewConfigError("mqtt.inbound_buffer", fmt.Errorf("must be positive"))
	}

	if c.Polling.HeaterInterval <= 0 {
		return bridgeerrors.NewConfigError("polling.heater_interval", fmt.Errorf("must be positive"))
	}
	if c.Polling.RoomInterval <= 0 {
		return bridgeerrors.NewConfigError("polling.room_interval", fmt.Errorf("must be positive"))
	}

	switch c.Storage.Type {
	case StorageMongo:
		if c.Storage.URI == "" {
			return bridgeerrors.NewConfigError("storage.uri", fmt.Errorf("is required for mongo storage"))
		}
		if c.Storage.Database == "" {
			return bridgeerrors.NewConfigError("storage.database", fmt.Errorf("is required for mongo storage"))
		}
	case StorageSQLite:
		if c.Storage.Path == "" {
			return bridgeerrors.NewConfigError("storage.path", fmt.Errorf("is required for sqlite storage"))
		}
	case StorageMemory:
	default:
		return bridgeerrors.NewConfigError("storage.type",
			fmt.Errorf("unknown storage type %q (want %s, %s or %s)", c.Storage.Type, StorageMongo, StorageSQLite, StorageMemory))
	}
	if c.Storage.Timeout <= 0 {
		return bridgeerrors.NewConfigError("storage.timeout", fmt.Errorf("must be positive"))
	}

	if _, err := c.Reporting.Location(); err != nil {
		return bridgeerrors.NewConfigError("reporting.timezone", err)
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return bridgeerrors.NewConfigError("metrics.port", fmt.Errorf("out of range: %d", c.Metrics.Port))
	}

	switch strings.ToLower(c.Logging.Level) {
	case logger.LogLevelError, logger.LogLevelWarn, logger.LogLevelInfo, logger.LogLevelDebug, logger.LogLevelTrace:
	default:
		return bridgeerrors.NewConfigError("logging.level", fmt.Errorf("unknown level %q", c.Logging.Level))
	}

	return nil
}

// Redacted returns a copy with secrets masked, suitable for printing
func (c *Config) Redacted() Config {
	out := *c
	if out.MQTT.Password != "" {
		out.MQTT.Password = "********"
	}
	if strings.Contains(out.Storage.URI, "@") {
		out.Storage.URI = maskURICredentials(out.Storage.URI)
	}
	return out
}

func maskURICredentials(uri string) string {
	scheme := ""
	rest := uri
	if i := strings.Index(uri, "://"); i >= 0 {
		scheme, rest = uri[:i+3], uri[i+3:]
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return uri
	}
	return scheme + "****:****" + rest[at:]
}
