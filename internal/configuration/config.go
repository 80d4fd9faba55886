// Package configuration loads the single YAML configuration file named by
// the process's sole CLI argument.
package configuration

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Peer is one member of the cluster's membership list.
type Peer struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (p Peer) Address() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// Config mirrors the field list fixed by the specification's external
// interfaces section: identity, membership, transport knobs, and the
// timers that drive the replica's periodic tasks.
type Config struct {
	ID       uint64 `yaml:"id"`
	Port     int    `yaml:"port"`
	Members  []Peer `yaml:"members"`
	PoolSize int    `yaml:"pool_size"`

	MaxMessage int `yaml:"max_message"`
	MaxBatch   int `yaml:"max_batch"`
	MaxDelay   time.Duration `yaml:"max_delay"`

	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ElectionTimeout   time.Duration `yaml:"election_timeout"`

	AppliedBacklog int64         `yaml:"applied_backlog"`
	RotateInterval time.Duration `yaml:"rotate_interval"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
	RPCMaxBatch    int           `yaml:"rpc_max_batch"`

	Log      string `yaml:"log"`
	LogLevel string `yaml:"log_level"`

	MetricsAddr string `yaml:"metrics_addr"`
}

func defaults() Config {
	return Config{
		PoolSize:          4,
		MaxMessage:        4 << 20,
		MaxBatch:          256,
		MaxDelay:          10 * time.Millisecond,
		HeartbeatTimeout:  2 * time.Second,
		HeartbeatInterval: 150 * time.Millisecond,
		ElectionTimeout:   1500 * time.Millisecond,
		AppliedBacklog:    10000,
		RotateInterval:    30 * time.Second,
		FlushInterval:     20 * time.Millisecond,
		RPCMaxBatch:       256,
		Log:               "data",
		LogLevel:          "info",
		MetricsAddr:       ":9100",
	}
}

// Load reads and parses the YAML file at path, applying defaults for any
// field the file omits (a field set explicitly to zero stays zero). ${VAR}
// references are expanded
// strictly: an undefined variable fails the load instead of silently
// becoming an empty string.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	expanded, err := expandEnvStrict(string(raw))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if len(cfg.Members) == 0 {
		return nil, fmt.Errorf("config %s: members list must not be empty", path)
	}
	if int(cfg.ID) >= len(cfg.Members) {
		return nil, fmt.Errorf("config %s: id %d out of range of %d members", path, cfg.ID, len(cfg.Members))
	}

	return &cfg, nil
}

// PeerAddresses returns the dial address of every member except self, keyed
// by membership index.
func (c *Config) PeerAddresses() map[uint64]string {
	peers := make(map[uint64]string, len(c.Members)-1)
	for i, m := range c.Members {
		if uint64(i) == c.ID {
			continue
		}
		peers[uint64(i)] = m.Address()
	}
	return peers
}
