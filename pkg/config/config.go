package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Trigger modes.
const (
	ModePeriodic = "periodic"
	ModeButton   = "button"
)

// Display transports.
const (
	TransportSerial = "serial"
	TransportMQTT   = "mqtt"
)

// Config represents the application configuration.
type Config struct {
	Network  NetworkConfig  `yaml:"network"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Trigger  TriggerConfig  `yaml:"trigger"`
	Button   ButtonConfig   `yaml:"button"`
	Display  DisplayConfig  `yaml:"display"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
	Log      LogConfig      `yaml:"log"`
}

// NetworkConfig contains upstream server configuration.
type NetworkConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	ConnectRetries int           `yaml:"connect_retries"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// FetchConfig describes what is requested each cycle.
type FetchConfig struct {
	Endpoints    []string `yaml:"endpoints"` // Exactly two, alternated
	Days         int      `yaml:"days"`
	Spot         string   `yaml:"spot"`
	DataField    string   `yaml:"data_field"`
	MaxBodyBytes int      `yaml:"max_body_bytes"`
}

// TriggerConfig selects what starts a fetch.
type TriggerConfig struct {
	Mode           string        `yaml:"mode"`
	TickPeriod     time.Duration `yaml:"tick_period"`
	Threshold      int64         `yaml:"threshold"` // Ticks per fetch in periodic mode
	DebouncePeriod time.Duration `yaml:"debounce_period"`
	PollInterval   time.Duration `yaml:"poll_interval"`
}

// ButtonConfig contains the push button GPIO configuration.
type ButtonConfig struct {
	Pin    string `yaml:"pin"`
	Pull   string `yaml:"pull"`   // up, down or none
	Invert bool   `yaml:"invert"` // Active low
}

// DisplayConfig selects the link to the display controller.
type DisplayConfig struct {
	Transport string       `yaml:"transport"`
	Serial    SerialConfig `yaml:"serial"`
	MQTT      MQTTConfig   `yaml:"mqtt"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// MQTTConfig contains broker configuration.
type MQTTConfig struct {
	BrokerURL string `yaml:"broker_url"`
	Topic     string `yaml:"topic"`
	ClientID  string `yaml:"client_id"`
}

// WatchdogConfig controls systemd watchdog notifications.
type WatchdogConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			BaseURL:        "http://192.168.1.10:8080/",
			Timeout:        10 * time.Second,
			ConnectRetries: 5,
			ConnectTimeout: 5 * time.Second,
		},
		Fetch: FetchConfig{
			Endpoints:    []string{"tides", "swell"},
			Days:         2,
			Spot:         "wedge",
			DataField:    "data",
			MaxBodyBytes: 4096,
		},
		Trigger: TriggerConfig{
			Mode:           ModePeriodic,
			TickPeriod:     time.Second,
			Threshold:      4,
			DebouncePeriod: 100 * time.Millisecond,
			PollInterval:   10 * time.Millisecond,
		},
		Button: ButtonConfig{
			Pin:    "GPIO13",
			Pull:   "up",
			Invert: true,
		},
		Display: DisplayConfig{
			Transport: TransportSerial,
			Serial: SerialConfig{
				Port:     "/dev/ttyS0",
				BaudRate: 9600,
			},
			MQTT: MQTTConfig{
				BrokerURL: "mqtt://localhost:1883",
				Topic:     "spotcheck/display",
				ClientID:  "spotcheck",
			},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	return cfg, nil
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Network.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("network.base_url must be an absolute url, got %q", c.Network.BaseURL))
	}
	if len(c.Fetch.Endpoints) != 2 {
		errs = append(errs, fmt.Errorf("fetch.endpoints must list exactly two endpoints, got %d", len(c.Fetch.Endpoints)))
	}
	for i, e := range c.Fetch.Endpoints {
		if e == "" {
			errs = append(errs, fmt.Errorf("fetch.endpoints[%d] is empty", i))
		}
	}
	if c.Fetch.Days < 1 {
		errs = append(errs, fmt.Errorf("fetch.days must be positive, got %d", c.Fetch.Days))
	}

	switch c.Trigger.Mode {
	case ModePeriodic, ModeButton:
	default:
		errs = append(errs, fmt.Errorf("trigger.mode must be %q or %q, got %q", ModePeriodic, ModeButton, c.Trigger.Mode))
	}

	switch c.Button.Pull {
	case "up", "down", "none":
	default:
		errs = append(errs, fmt.Errorf("button.pull must be up, down or none, got %q", c.Button.Pull))
	}

	switch c.Display.Transport {
	case TransportSerial:
		if c.Display.Serial.Port == "" {
			errs = append(errs, errors.New("display.serial.port is required"))
		}
	case TransportMQTT:
		if c.Display.MQTT.BrokerURL == "" {
			errs = append(errs, errors.New("display.mqtt.broker_url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("display.transport must be %q or %q, got %q", TransportSerial, TransportMQTT, c.Display.Transport))
	}

	return errors.Join(errs...)
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Network.BaseURL == "" {
		c.Network.BaseURL = def.Network.BaseURL
	}
	if c.Network.Timeout == 0 {
		c.Network.Timeout = def.Network.Timeout
	}
	if c.Network.ConnectRetries == 0 {
		c.Network.ConnectRetries = def.Network.ConnectRetries
	}
	if c.Network.ConnectTimeout == 0 {
		c.Network.ConnectTimeout = def.Network.ConnectTimeout
	}

	if len(c.Fetch.Endpoints) == 0 {
		c.Fetch.Endpoints = def.Fetch.Endpoints
	}
	if c.Fetch.Days == 0 {
		c.Fetch.Days = def.Fetch.Days
	}
	if c.Fetch.Spot == "" {
		c.Fetch.Spot = def.Fetch.Spot
	}
	if c.Fetch.DataField == "" {
		c.Fetch.DataField = def.Fetch.DataField
	}
	if c.Fetch.MaxBodyBytes == 0 {
		c.Fetch.MaxBodyBytes = def.Fetch.MaxBodyBytes
	}

	if c.Trigger.Mode == "" {
		c.Trigger.Mode = def.Trigger.Mode
	}
	if c.Trigger.TickPeriod == 0 {
		c.Trigger.TickPeriod = def.Trigger.TickPeriod
	}
	if c.Trigger.Threshold == 0 {
		c.Trigger.Threshold = def.Trigger.Threshold
	}
	if c.Trigger.DebouncePeriod == 0 {
		c.Trigger.DebouncePeriod = def.Trigger.DebouncePeriod
	}
	if c.Trigger.PollInterval == 0 {
		c.Trigger.PollInterval = def.Trigger.PollInterval
	}

	if c.Button.Pin == "" {
		c.Button.Pin = def.Button.Pin
	}
	if c.Button.Pull == "" {
		c.Button.Pull = def.Button.Pull
	}

	if c.Display.Transport == "" {
		c.Display.Transport = def.Display.Transport
	}
	if c.Display.Serial.Port == "" {
		c.Display.Serial.Port = def.Display.Serial.Port
	}
	if c.Display.Serial.BaudRate == 0 {
		c.Display.Serial.BaudRate = def.Display.Serial.BaudRate
	}
	if c.Display.MQTT.Topic == "" {
		c.Display.MQTT.Topic = def.Display.MQTT.Topic
	}
	if c.Display.MQTT.ClientID == "" {
		c.Display.MQTT.ClientID = def.Display.MQTT.ClientID
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}
