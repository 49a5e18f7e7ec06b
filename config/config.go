// Package config loads fanoutd settings from TOML, YAML or JSON files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for fanoutd.
// Keys missing from a loaded file keep their Default() values.
type Config struct {
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format" validate:"required,oneof=console json"`

	Manager ManagerConfig `json:"manager" yaml:"manager" toml:"manager"`
	Fanout  FanoutConfig  `json:"fanout" yaml:"fanout" toml:"fanout"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" toml:"metrics"`
	Demo    DemoConfig    `json:"demo" yaml:"demo" toml:"demo"`
}

type ManagerConfig struct {
	Name            string `json:"name" yaml:"name" toml:"name"`
	HistoryCapacity int    `json:"history_capacity" yaml:"history_capacity" toml:"history_capacity" validate:"gte=0"`
}

type FanoutConfig struct {
	Name string `json:"name" yaml:"name" toml:"name"`

	// StopTimeout bounds how long stopping waits on each observer. Zero waits forever.
	StopTimeout Duration `json:"stop_timeout" yaml:"stop_timeout" toml:"stop_timeout" validate:"gte=0"`
}

type MetricsConfig struct {
	Namespace        string   `json:"namespace" yaml:"namespace" toml:"namespace" validate:"required"`
	Addr             string   `json:"addr" yaml:"addr" toml:"addr" validate:"required,hostname_port"`
	SnapshotInterval Duration `json:"snapshot_interval" yaml:"snapshot_interval" toml:"snapshot_interval" validate:"gt=0"`
}

// DemoConfig drives the synthetic pipeline that feeds the fanout.
type DemoConfig struct {
	Interval  Duration `json:"interval" yaml:"interval" toml:"interval" validate:"gt=0"`
	Stages    []string `json:"stages" yaml:"stages" toml:"stages" validate:"min=2,dive,required"`
	Observers []string `json:"observers" yaml:"observers" toml:"observers" validate:"min=1,dive,oneof=log count"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "console",
		Manager: ManagerConfig{
			Name:            "fanoutd",
			HistoryCapacity: 100,
		},
		Fanout: FanoutConfig{
			Name:        "pipeline",
			StopTimeout: Duration(2 * time.Second),
		},
		Metrics: MetricsConfig{
			Namespace:        "frameobserver",
			Addr:             ":2112",
			SnapshotInterval: Duration(time.Second),
		},
		Demo: DemoConfig{
			Interval:  Duration(250 * time.Millisecond),
			Stages:    []string{"input", "stt", "llm", "tts", "output"},
			Observers: []string{"log", "count"},
		},
	}
}

// Load reads a configuration file based on its extension on top of Default()
// and validates the result.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Marshal encodes c in the given format: "toml", "yaml" or "json".
func (c Config) Marshal(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "toml":
		return toml.Marshal(c)
	case "yaml", "yml":
		return yaml.Marshal(c)
	case "json":
		return json.MarshalIndent(c, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported config format: %s", format)
	}
}
