package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeCoordinator Mode = "coordinator"
	ModeNode        Mode = "node"
	ModeClient      Mode = "client"
)

const (
	DefaultCoordinatorAddress = ":9000"
	DefaultNodeAddress        = ":9100"
	DefaultAdvertiseHost      = "127.0.0.1"
	DefaultPlacement          = "first-available"
)

type Config struct {
	Mode        Mode              `json:"mode" yaml:"mode" validate:"omitempty,oneof=coordinator node client"`
	Coordinator CoordinatorConfig `json:"coordinator,omitempty" yaml:"coordinator,omitempty"`
	Node        NodeConfig        `json:"node,omitempty" yaml:"node,omitempty"`
	Client      ClientConfig      `json:"client,omitempty" yaml:"client,omitempty"`
}

type CoordinatorConfig struct {
	Address string `json:"address" yaml:"address" validate:"required"`

	// Placement names the policy used for unmapped paths on WRITE.
	Placement string `json:"placement" yaml:"placement" validate:"omitempty,oneof=first-available round-robin least-loaded hash"`

	// DedupeNodes makes re-registration of a known address a no-op instead
	// of appending a second entry.
	DedupeNodes bool `json:"dedupe_nodes" yaml:"dedupe_nodes"`

	// Empty timeouts mean no deadline.
	DialTimeout string `json:"dial_timeout,omitempty" yaml:"dial_timeout,omitempty" validate:"omitempty,duration"`
	IOTimeout   string `json:"io_timeout,omitempty" yaml:"io_timeout,omitempty" validate:"omitempty,duration"`

	HealthAddress string `json:"health_address,omitempty" yaml:"health_address,omitempty"`
}

type NodeConfig struct {
	Address            string `json:"address" yaml:"address" validate:"required"`
	AdvertiseHost      string `json:"advertise_host" yaml:"advertise_host" validate:"required"`
	CoordinatorAddress string `json:"coordinator_address" yaml:"coordinator_address" validate:"required"`
	RootDir            string `json:"root_dir" yaml:"root_dir" validate:"required"`

	DialTimeout string `json:"dial_timeout,omitempty" yaml:"dial_timeout,omitempty" validate:"omitempty,duration"`
	IOTimeout   string `json:"io_timeout,omitempty" yaml:"io_timeout,omitempty" validate:"omitempty,duration"`

	HealthAddress string `json:"health_address,omitempty" yaml:"health_address,omitempty"`
}

type ClientConfig struct {
	CoordinatorAddress string `json:"coordinator_address" yaml:"coordinator_address" validate:"required"`
	DialTimeout        string `json:"dial_timeout,omitempty" yaml:"dial_timeout,omitempty" validate:"omitempty,duration"`
}

// LoadConfig reads a JSON config file, or YAML when the extension is .yaml or .yml.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// LoadFromEnv builds a config from FLATSTORE_* environment variables.
func LoadFromEnv() *Config {
	cfg := &Config{
		Mode: Mode(getEnv("FLATSTORE_MODE", string(ModeCoordinator))),
		Coordinator: CoordinatorConfig{
			Address:       getEnv("FLATSTORE_COORDINATOR_LISTEN", DefaultCoordinatorAddress),
			Placement:     getEnv("FLATSTORE_PLACEMENT", DefaultPlacement),
			DedupeNodes:   getEnv("FLATSTORE_DEDUPE_NODES", "") == "true",
			DialTimeout:   os.Getenv("FLATSTORE_DIAL_TIMEOUT"),
			IOTimeout:     os.Getenv("FLATSTORE_IO_TIMEOUT"),
			HealthAddress: os.Getenv("FLATSTORE_HEALTH_ADDRESS"),
		},
		Node: NodeConfig{
			Address:            getEnv("FLATSTORE_NODE_LISTEN", DefaultNodeAddress),
			AdvertiseHost:      getEnv("FLATSTORE_ADVERTISE_HOST", DefaultAdvertiseHost),
			CoordinatorAddress: getEnv("FLATSTORE_COORDINATOR_ADDRESS", "localhost"+DefaultCoordinatorAddress),
			RootDir:            getEnv("FLATSTORE_ROOT_DIR", "./data"),
			DialTimeout:        os.Getenv("FLATSTORE_DIAL_TIMEOUT"),
			IOTimeout:          os.Getenv("FLATSTORE_IO_TIMEOUT"),
			HealthAddress:      os.Getenv("FLATSTORE_HEALTH_ADDRESS"),
		},
		Client: ClientConfig{
			CoordinatorAddress: getEnv("FLATSTORE_COORDINATOR_ADDRESS", "localhost"+DefaultCoordinatorAddress),
			DialTimeout:        os.Getenv("FLATSTORE_DIAL_TIMEOUT"),
		},
	}
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Coordinator.Address == "" {
		c.Coordinator.Address = DefaultCoordinatorAddress
	}
	if c.Coordinator.Placement == "" {
		c.Coordinator.Placement = DefaultPlacement
	}
	if c.Node.Address == "" {
		c.Node.Address = DefaultNodeAddress
	}
	if c.Node.AdvertiseHost == "" {
		c.Node.AdvertiseHost = DefaultAdvertiseHost
	}
	if c.Node.CoordinatorAddress == "" {
		c.Node.CoordinatorAddress = "localhost" + DefaultCoordinatorAddress
	}
	if c.Client.CoordinatorAddress == "" {
		c.Client.CoordinatorAddress = c.Node.CoordinatorAddress
	}
}

// ParseTimeout parses an optional duration. An empty string yields zero.
func ParseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
