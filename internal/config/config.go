// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package config

import (
	"time"
)

// Version defines the rfm95-node version.
var Version string

// Config defines the configuration structure.
type Config struct {
	General struct {
		LogLevel int `mapstructure:"log_level"`
	} `mapstructure:"general"`

	Radio struct {
		SPIPort    string `mapstructure:"spi_port"`
		SPISpeed   int64  `mapstructure:"spi_speed"` // Hz
		NSSPin     string `mapstructure:"nss_pin"`
		ResetPin   string `mapstructure:"reset_pin"`
		DIO0Pin    string `mapstructure:"dio0_pin"`
		DIO1Pin    string `mapstructure:"dio1_pin"`
		DIO5Pin    string `mapstructure:"dio5_pin"`
		CSMuxPin   string `mapstructure:"cs_mux_pin"`
		CSMuxValue bool   `mapstructure:"cs_mux_value"`
		Power      int    `mapstructure:"power"`
		DataRate   string `mapstructure:"data_rate"`
		Interrupts bool   `mapstructure:"interrupts"`
	} `mapstructure:"radio"`

	LoRaWAN struct {
		DevAddr      string        `mapstructure:"dev_addr"`
		NwkSKey      string        `mapstructure:"nwk_s_key"`
		AppSKey      string        `mapstructure:"app_s_key"`
		ReceiveMode  string        `mapstructure:"receive_mode"`
		RX1Delay     time.Duration `mapstructure:"rx1_delay"`
		RX2DataRate  string        `mapstructure:"rx2_data_rate"`
		DriftNsPerS  uint32        `mapstructure:"drift_ns_per_s"`
		MinRxSymbols uint16        `mapstructure:"min_rx_symbols"`
	} `mapstructure:"lorawan"`

	Store struct {
		Type     string `mapstructure:"type"`
		File     string `mapstructure:"file"`
		RedisURL string `mapstructure:"redis_url"`
	} `mapstructure:"store"`

	MQTT struct {
		Server      string `mapstructure:"server"`
		Username    string `mapstructure:"username"`
		Password    string `mapstructure:"password"`
		ClientID    string `mapstructure:"client_id"`
		TopicPrefix string `mapstructure:"topic_prefix"`
		QOS         uint8  `mapstructure:"qos"`
	} `mapstructure:"mqtt"`

	Metrics struct {
		Bind string `mapstructure:"bind"`
	} `mapstructure:"metrics"`

	Node struct {
		Interval time.Duration `mapstructure:"interval"`
		Realtime bool          `mapstructure:"realtime"`
	} `mapstructure:"node"`
}

// C holds the global configuration.
var C Config
