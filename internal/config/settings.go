package config

import "time"

// MQTTSettings contains only MQTT-specific configuration
// Used for dependency injection to avoid coupling to full Config
type MQTTSettings struct {
	Broker        string
	Username      string
	Password      string
	ClientID      string
	RetryDelay    time.Duration
	KeepAlive     time.Duration
	QoS           byte
	InboundBuffer int
}

// NewMQTTSettings extracts MQTT settings from full config
func NewMQTTSettings(cfg *Config) MQTTSettings {
	return MQTTSettings{
		Broker:        cfg.MQTT.Broker,
		Username:      cfg.MQTT.Username,
		Password:      cfg.MQTT.Password,
		ClientID:      cfg.MQTT.ClientID,
		RetryDelay:    time.Duration(cfg.MQTT.RetryDelay) * time.Millisecond,
		KeepAlive:     time.Duration(cfg.MQTT.KeepAlive) * time.Second,
		QoS:           cfg.MQTT.QoS,
		InboundBuffer: cfg.MQTT.InboundBuffer,
	}
}

// TopicSettings names the two topics the pipeline uses
type TopicSettings struct {
	Device   string // Outbound requests
	Response string // Inbound responses
}

// NewTopicSettings extracts topic settings from full config
func NewTopicSettings(cfg *Config) TopicSettings {
	return TopicSettings{
		Device:   cfg.MQTT.DeviceTopic,
		Response: cfg.MQTT.ResponseTopic,
	}
}

// PollingSettings contains the poll cadences
// Used for dependency injection to avoid coupling to full Config
type PollingSettings struct {
	HeaterInterval time.Duration
	RoomInterval   time.Duration
}

// NewPollingSettings extracts polling settings from full config
func NewPollingSettings(cfg *Config) PollingSettings {
	return PollingSettings{
		HeaterInterval: time.Duration(cfg.Polling.HeaterInterval) * time.Millisecond,
		RoomInterval:   time.Duration(cfg.Polling.RoomInterval) * time.Millisecond,
	}
}

// StorageSettings contains only persistence configuration
type StorageSettings struct {
	Type     string
	URI      string
	Database string
	Path     string
	Timeout  time.Duration
}

// NewStorageSettings extracts storage settings from full config
func NewStorageSettings(cfg *Config) StorageSettings {
	return StorageSettings{
		Type:     cfg.Storage.Type,
		URI:      cfg.Storage.URI,
		Database: cfg.Storage.Database,
		Path:     cfg.Storage.Path,
		Timeout:  time.Duration(cfg.Storage.Timeout) * time.Millisecond,
	}
}
