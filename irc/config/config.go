// Package config loads and validates the qircd server configuration
// from TOML, YAML, or JSON, from a local file or a URL, with
// environment variable overrides on top.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Operator is one entry in the operator block. Password holds a bcrypt
// hash, never a plaintext password. Mask, when set, restricts OPER to
// clients whose hostmask matches it.
type Operator struct {
	Username string `yaml:"username" toml:"username" json:"username" validate:"required"`
	Password string `yaml:"password" toml:"password" json:"password" validate:"required"`
	Mask     string `yaml:"mask" toml:"mask" json:"mask"`
}

// Peer names one member of the consensus cluster.
type Peer struct {
	ID  string `yaml:"id" toml:"id" json:"id" validate:"required"`
	URL string `yaml:"url" toml:"url" json:"url" validate:"required,url"`
}

// Config represents the server configuration
type Config struct {
	// Server settings
	Server struct {
		Name        string   `yaml:"name" toml:"name" json:"name" env:"QIRCD_SERVER_NAME" validate:"required,hostname"`
		Network     string   `yaml:"network" toml:"network" json:"network" env:"QIRCD_NETWORK"`
		Description string   `yaml:"description" toml:"description" json:"description"`
		Host        string   `yaml:"host" toml:"host" json:"host" env:"QIRCD_HOST"`
		Port        int      `yaml:"port" toml:"port" json:"port" env:"QIRCD_PORT" validate:"min=1,max=65535"`
		Password    string   `yaml:"password" toml:"password" json:"password" env:"QIRCD_PASSWORD"`
		Proxy       bool     `yaml:"proxy_protocol" toml:"proxy_protocol" json:"proxy_protocol" env:"QIRCD_PROXY_PROTOCOL"`
		MOTD        []string `yaml:"motd" toml:"motd" json:"motd"`
	} `yaml:"server" toml:"server" json:"server"`

	// TLS settings
	TLS struct {
		Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled" env:"QIRCD_TLS_ENABLED"`
		Cert    string `yaml:"cert" toml:"cert" json:"cert" env:"QIRCD_TLS_CERT"`
		Key     string `yaml:"key" toml:"key" json:"key" env:"QIRCD_TLS_KEY"`
		Port    int    `yaml:"port" toml:"port" json:"port" env:"QIRCD_TLS_PORT" validate:"min=0,max=65535"`
	} `yaml:"tls" toml:"tls" json:"tls"`

	// Cluster settings for the replicated log. Peers lists every
	// member of the cluster, this server included.
	Cluster struct {
		NodeID            string `yaml:"node_id" toml:"node_id" json:"node_id" env:"QIRCD_NODE_ID" validate:"required"`
		Listen            string `yaml:"listen" toml:"listen" json:"listen" env:"QIRCD_CLUSTER_LISTEN"`
		Advertise         string `yaml:"advertise" toml:"advertise" json:"advertise" env:"QIRCD_CLUSTER_ADVERTISE"`
		Peers             []Peer `yaml:"peers" toml:"peers" json:"peers" validate:"dive"`
		DataDir           string `yaml:"data_dir" toml:"data_dir" json:"data_dir" env:"QIRCD_DATA_DIR"`
		Secret            string `yaml:"secret" toml:"secret" json:"secret" env:"QIRCD_CLUSTER_SECRET"`
		ElectionTimeoutMS int    `yaml:"election_timeout_ms" toml:"election_timeout_ms" json:"election_timeout_ms" env:"QIRCD_ELECTION_TIMEOUT_MS"`
		HeartbeatMS       int    `yaml:"heartbeat_ms" toml:"heartbeat_ms" json:"heartbeat_ms" env:"QIRCD_HEARTBEAT_MS"`
		ProposalTimeoutMS int    `yaml:"proposal_timeout_ms" toml:"proposal_timeout_ms" json:"proposal_timeout_ms" env:"QIRCD_PROPOSAL_TIMEOUT_MS"`
		SnapshotInterval  uint64 `yaml:"snapshot_interval" toml:"snapshot_interval" json:"snapshot_interval" env:"QIRCD_SNAPSHOT_INTERVAL"`
	} `yaml:"cluster" toml:"cluster" json:"cluster"`

	// Shared banlist fetched from a URL, refreshed in the background.
	Banlist struct {
		URL            string `yaml:"url" toml:"url" json:"url" env:"QIRCD_BANLIST_URL" validate:"omitempty,url"`
		RefreshSeconds int    `yaml:"refresh_seconds" toml:"refresh_seconds" json:"refresh_seconds" env:"QIRCD_BANLIST_REFRESH"`
	} `yaml:"banlist" toml:"banlist" json:"banlist"`

	// Operator definitions
	Operators []Operator `yaml:"operators" toml:"operators" json:"operators" validate:"dive"`

	Debug bool `yaml:"debug" toml:"debug" json:"debug" env:"QIRCD_DEBUG"`

	// Configuration source for rehashing
	Source string `yaml:"-" toml:"-" json:"-" env:"-"`
}

func defaults(cfg *Config) {
	cfg.Server.Name = "qircd.local"
	cfg.Server.Network = "QIRCd"
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 6667
	cfg.TLS.Port = 6697
	cfg.Cluster.Listen = "0.0.0.0:8670"
	cfg.Cluster.DataDir = "data"
	cfg.Cluster.ElectionTimeoutMS = 150
	cfg.Cluster.HeartbeatMS = 50
	cfg.Cluster.ProposalTimeoutMS = 10000
	cfg.Cluster.SnapshotInterval = 10000
	cfg.Banlist.RefreshSeconds = 300
}

// Load loads configuration from a file or URL
func Load(source string) (*Config, error) {
	cfg := &Config{
		Source: source,
	}
	defaults(cfg)

	err := cfg.loadFromSource(source)
	if err != nil {
		return nil, err
	}

	// Environment variables override whatever the file said.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %v", err)
	}

	return cfg, nil
}

// Reload reloads the configuration from the original source or a new source
func (c *Config) Reload(newSource string) error {
	if newSource != "" {
		c.Source = newSource
	}

	newCfg := &Config{}
	defaults(newCfg)

	err := newCfg.loadFromSource(c.Source)
	if err != nil {
		return err
	}

	if err := env.Parse(newCfg); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %v", err)
	}

	if err := newCfg.Validate(); err != nil {
		return err
	}

	*c = *newCfg
	return nil
}

// Validate checks the configuration for structural problems that would
// only surface later as confusing runtime failures.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}
	if len(c.Cluster.Peers) > 0 {
		found := false
		for _, p := range c.Cluster.Peers {
			if p.ID == c.Cluster.NodeID {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("invalid configuration: cluster.peers does not include this node (%s)", c.Cluster.NodeID)
		}
	}
	return nil
}

// loadFromSource loads configuration from a file or URL
func (c *Config) loadFromSource(source string) error {
	var data []byte
	var err error

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := http.Get(source)
		if err != nil {
			return fmt.Errorf("failed to load config from URL: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("failed to load config from URL, status: %s", resp.Status)
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read config from URL: %v", err)
		}
	} else {
		data, err = os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("failed to read config file: %v", err)
		}
	}

	// Determine the format based on file extension
	switch {
	case strings.HasSuffix(source, ".yaml") || strings.HasSuffix(source, ".yml"):
		err = yaml.Unmarshal(data, c)
	case strings.HasSuffix(source, ".json"):
		err = json.Unmarshal(data, c)
	default:
		err = toml.Unmarshal(data, c)
	}

	if err != nil {
		return fmt.Errorf("failed to parse config: %v", err)
	}

	c.Source = source
	return nil
}

// GetListenAddress returns the formatted listen address for the server
func (c *Config) GetListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetTLSListenAddress returns the formatted listen address for the TLS
// listener.
func (c *Config) GetTLSListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.TLS.Port)
}
