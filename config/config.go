package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Namespace string `yaml:"namespace" toml:"namespace"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Endpoint    string `yaml:"endpoint" toml:"endpoint"`
	Insecure    bool   `yaml:"insecure" toml:"insecure"`
	ServiceName string `yaml:"serviceName" toml:"serviceName"`
}

type Config struct {
	LogLevel      string        `yaml:"logLevel" toml:"logLevel"`
	LogFormat     string        `yaml:"logFormat" toml:"logFormat"`
	LogTimeFormat string        `yaml:"logTimeFormat" toml:"logTimeFormat"` // console format only
	Metrics       MetricsConfig `yaml:"metrics" toml:"metrics"`
	Tracing       TracingConfig `yaml:"tracing" toml:"tracing"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: LogFormatConsole,
		Metrics: MetricsConfig{
			Namespace: "pubsub",
		},
		Tracing: TracingConfig{
			ServiceName: "pubsubctl",
		},
	}
}

// LoadConfig reads a configuration file, the format is picked by extension:
// .yaml, .yml or .toml
func LoadConfig(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return LoadConfigFromReader(file)
	case ".toml":
		return LoadConfigFromTOML(file)
	default:
		return Config{}, fmt.Errorf("unsupported config extension: %s", ext)
	}
}

// LoadConfigFromReader decodes a YAML configuration.
func LoadConfigFromReader(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}

	config := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("failed to parse yaml config: %w", err)
		}
	}
	return config, config.validate()
}

// LoadConfigFromTOML decodes a TOML configuration.
func LoadConfigFromTOML(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}

	config := Default()
	if err := toml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse toml config: %w", err)
	}
	return config, config.validate()
}

func (c *Config) validate() error {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid logLevel %q: %w", c.LogLevel, err)
	}

	switch c.LogFormat {
	case "":
		c.LogFormat = LogFormatConsole
	case LogFormatConsole, LogFormatJSON:
	default:
		return fmt.Errorf("invalid logFormat %q, must be %s or %s", c.LogFormat, LogFormatConsole, LogFormatJSON)
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "pubsub"
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "pubsubctl"
	}
	return nil
}

// NewLogger builds the process logger writing to w.
func (c Config) NewLogger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := w
	if c.LogFormat == LogFormatConsole {
		cw := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.Kitchen}
		if c.LogTimeFormat != "" {
			cw.TimeFormat = c.LogTimeFormat
		}
		out = cw
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
