package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const defaultConfigPath = "pinto.yaml"

// Config holds the settings shared by all subcommands.
type Config struct {
	DataDir          string        `yaml:"dataDir"`
	TimestampAddr    string        `yaml:"timestampAddr"`
	TimestampTimeout time.Duration `yaml:"timestampTimeout"`
	Workers          int           `yaml:"workers"`
	Codec            string        `yaml:"codec"`
	Algorithm        string        `yaml:"algorithm"`
	VaultPath        string        `yaml:"vaultPath"`
	LogLevel         string        `yaml:"logLevel"`
	LogFormat        string        `yaml:"logFormat"`

	// Recording defaults; redaction and verification read them from the
	// clip's metadata instead.
	Rows      int     `yaml:"rows"`
	Columns   int     `yaml:"columns"`
	Intensity float64 `yaml:"intensity"`
	FrameRate int     `yaml:"frameRate"`
}

// loadConfig reads path. A missing file is only an error when the path
// was given explicitly.
func loadConfig(path string, explicit bool) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.TimestampTimeout == 0 {
		c.TimestampTimeout = time.Second
	}
	if c.Codec == "" {
		c.Codec = "png"
	}
	if c.Algorithm == "" {
		c.Algorithm = "sha256"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Rows == 0 {
		c.Rows = 4
	}
	if c.Columns == 0 {
		c.Columns = 4
	}
	if c.Intensity == 0 {
		c.Intensity = 8
	}
	if c.FrameRate == 0 {
		c.FrameRate = 10
	}
}

func (c *Config) logger() (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	switch c.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return log, nil
}
