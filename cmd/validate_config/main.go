package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"heating-mqtt-bridge/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: validate_config <config-file>")
		os.Exit(1)
	}

	configPath := os.Args[1]
	fmt.Printf("📄 Loading config from: %s\n", configPath)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("❌ Error loading config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Config loaded successfully!\n")
	fmt.Printf("   MQTT Broker: %s (client %s)\n", cfg.MQTT.Broker, cfg.MQTT.ClientID)
	fmt.Printf("   Topics: %s -> %s\n", cfg.MQTT.DeviceTopic, cfg.MQTT.ResponseTopic)
	fmt.Printf("   Polling: heater every %d ms, room every %d ms\n", cfg.Polling.HeaterInterval, cfg.Polling.RoomInterval)
	fmt.Printf("   Storage: %s\n", cfg.Storage.Type)

	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		fmt.Printf("❌ Error rendering config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\n🔍 Effective configuration:\n%s", out)
	fmt.Println("\n✅ Configuration is valid!")
}
