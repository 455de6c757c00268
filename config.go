package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/john/conveyor_client/printer"
)

type Config struct {
	Daemon  DaemonConfig  `yaml:"daemon" toml:"daemon" json:"daemon"`
	HTTP    HTTPConfig    `yaml:"http" toml:"http" json:"http"`
	Logging LoggingConfig `yaml:"logging" toml:"logging" json:"logging"`
	Job     JobConfig     `yaml:"job" toml:"job" json:"job"`
}

type DaemonConfig struct {
	// URL is the conveyor daemon's websocket endpoint.
	URL string `yaml:"url" toml:"url" json:"url"`
	// CallTimeout bounds each request to the daemon, in seconds. 0 disables it.
	CallTimeout int `yaml:"call_timeout" toml:"call_timeout" json:"call_timeout"`
}

type HTTPConfig struct {
	Host string `yaml:"host" toml:"host" json:"host"`
	Port int    `yaml:"port" toml:"port" json:"port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

type JobConfig struct {
	DefaultMaterial string               `yaml:"default_material" toml:"default_material" json:"default_material"`
	Slicer          printer.SlicerConfig `yaml:"slicer" toml:"slicer" json:"slicer"`
}

func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			URL:         "ws://127.0.0.1:9999/conveyor",
			CallTimeout: 30,
		},
		HTTP: HTTPConfig{
			Host: "127.0.0.1",
			Port: 7130,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Job: JobConfig{
			DefaultMaterial: "PLA",
			Slicer: printer.SlicerConfig{
				Slicer:              "miraclegrue",
				Extruder:            "0",
				Infill:              0.1,
				LayerHeight:         0.2,
				Shells:              2,
				ExtruderTemperature: 230,
				PlatformTemperature: 110,
				PrintSpeed:          80,
				TravelSpeed:         100,
			},
		},
	}
}

// LoadConfig reads the file at path over the defaults. The format follows the
// extension: .yaml/.yml, .toml or .json. A missing file yields the defaults.
// The result is not validated; callers apply their overrides and then call
// Validate.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Daemon.URL == "" {
		return fmt.Errorf("daemon url is required")
	}
	if !strings.HasPrefix(c.Daemon.URL, "ws://") && !strings.HasPrefix(c.Daemon.URL, "wss://") {
		return fmt.Errorf("daemon url must use ws:// or wss://, got %q", c.Daemon.URL)
	}
	if c.Daemon.CallTimeout < 0 {
		return fmt.Errorf("daemon call timeout must be non-negative")
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, console)", c.Logging.Format)
	}
	return nil
}

func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Daemon.CallTimeout) * time.Second
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
