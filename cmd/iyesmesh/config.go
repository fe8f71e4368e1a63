package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the tool configuration file
// (~/.config/iyesmesh/config.yaml). Pointer fields distinguish
// "not set" from zero values.
type Config struct {
	// Write defaults
	CompressionLevel  *int  `yaml:"compression_level"`
	WriteDataChecksum *bool `yaml:"write_data_checksum"`
	UpconvertIndices  *bool `yaml:"upconvert_indices"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
	ServeDir      string `yaml:"serve_dir"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "iyesmesh", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist or cannot be parsed.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyWriteConfig applies config file defaults to write flags when the
// corresponding CLI flag was not explicitly set.
func applyWriteConfig(c *cli.Command, cfg Config) {
	if cfg.CompressionLevel != nil && !c.IsSet("level") {
		compressionLevel = *cfg.CompressionLevel
	}
	if cfg.WriteDataChecksum != nil && !c.IsSet("no-data-checksum") {
		noDataChecksum = !*cfg.WriteDataChecksum
	}
	if cfg.UpconvertIndices != nil && !c.IsSet("upconvert-indices") {
		upconvertIndices = *cfg.UpconvertIndices
	}
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr, dir *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.ServeDir != "" && !c.IsSet("dir") {
		*dir = cfg.ServeDir
	}
}
