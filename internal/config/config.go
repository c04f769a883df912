// Package config loads the receptionist's YAML configuration document,
// the way balookrd-outline-cli-ws's internal/config package loads its
// server list: a plain struct with yaml tags, one os.ReadFile plus
// yaml.Unmarshal, defaults applied after decode rather than via
// zero-value magic scattered through the rest of the program.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full set of recognized keys (spec.md §6 plus the ones a
// real deployment needs: listen address, version name, protocol
// version, player limit, favicon and log level).
type Config struct {
	ListenAddr         string `yaml:"listen_addr"`
	TargetInstanceName string `yaml:"target_instance_name"`
	MCTargetPort       int    `yaml:"mc_target_port"`
	MCTargetMOTD       string `yaml:"mc_target_motd"`
	MCVersionName      string `yaml:"mc_version_name"`
	MCProtocolVersion  int32  `yaml:"mc_protocol_version"`
	MaxPlayers         int    `yaml:"max_players"`
	FaviconPath        string `yaml:"favicon_path"`
	LogLevel           string `yaml:"log_level"`
}

// defaults mirror the annotated example in SPEC_FULL.md; a config file
// that omits a key gets the production-sane value here rather than Go's
// zero value (which would fail Validate for listen_addr and
// mc_target_port, and report protocol version 0 in status replies).
func defaults() Config {
	return Config{
		ListenAddr:        "0.0.0.0:25565",
		MCTargetPort:      25565,
		MCTargetMOTD:      "A Receptionist Server",
		MCVersionName:     "1.21.8",
		MCProtocolVersion: 773,
		MaxPlayers:        20,
		LogLevel:          "info",
	}
}

// Load reads and parses the YAML document at path, applying defaults()
// for any key the file does not set.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects a config whose required fields are missing or
// out of range.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.TargetInstanceName == "" {
		return fmt.Errorf("target_instance_name is required")
	}
	if c.MCTargetPort <= 0 || c.MCTargetPort > 65535 {
		return fmt.Errorf("invalid mc_target_port: %d", c.MCTargetPort)
	}
	if c.MaxPlayers < 0 {
		return fmt.Errorf("max_players cannot be negative")
	}
	return nil
}
