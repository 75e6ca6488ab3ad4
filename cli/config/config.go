package config

import (
	"fmt"
	"time"
)

// Config represents a sluice.yaml configuration file.
// All values are optional and act as defaults for the export and search
// command flags. CLI flags always override config values.
type Config struct {
	Session string        `yaml:"session"`
	Source  string        `yaml:"source"`
	Sources []string      `yaml:"sources"`
	Ports   []uint16      `yaml:"ports"`
	Serial  SerialConfig  `yaml:"serial"`
	Parser  ParserConfig  `yaml:"parser"`
	Export  ExportConfig  `yaml:"export"`
	Storage StorageConfig `yaml:"storage"`
	Adapter AdapterConfig `yaml:"adapter"`
	Log     LogConfig     `yaml:"log"`
}

// SerialConfig holds serial port defaults.
type SerialConfig struct {
	BaudRate int      `yaml:"baud_rate"`
	Timeout  Duration `yaml:"timeout"`
}

// ParserConfig selects the message parser.
type ParserConfig struct {
	Kind          string `yaml:"kind"`
	MaxLineLength int    `yaml:"max_line_length"`
	Buffer        int    `yaml:"buffer"`
}

// ExportConfig holds export defaults.
type ExportConfig struct {
	Destination string   `yaml:"destination"`
	Sections    []string `yaml:"sections"`
	ReadToEnd   bool     `yaml:"read_to_end"`
	Text        *bool    `yaml:"text,omitempty"`
}

// StorageConfig holds storage defaults from the config file.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	Source      string `yaml:"source"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type     string            `yaml:"type"`
	URL      string            `yaml:"url"`
	Channel  string            `yaml:"channel,omitempty"`
	Encoding string            `yaml:"encoding,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
	Timeout  Duration          `yaml:"timeout,omitempty"`
	Retries  *int              `yaml:"retries,omitempty"`
}

// LogConfig holds logging defaults.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// SourceList returns the configured sources, the single source first.
func (c *Config) SourceList() []string {
	var out []string
	if c.Source != "" {
		out = append(out, c.Source)
	}
	return append(out, c.Sources...)
}
