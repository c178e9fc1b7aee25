// Package config loads tunnel tuning from YAML for the surrounding
// application. The core packages take plain values; this is the glue
// that produces them from a file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opd-ai/vpncore/tlsx"
	"github.com/opd-ai/vpncore/transport"
)

// Config is the root configuration document.
type Config struct {
	Remote    RemoteConfig    `yaml:"remote"`
	Transport TransportConfig `yaml:"transport"`
	TLS       TLSConfig       `yaml:"tls"`
}

// RemoteConfig names the server to connect to.
type RemoteConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// TransportConfig carries link tuning. Zero values take the transport
// package defaults.
type TransportConfig struct {
	SendQueueMaxSize int `yaml:"send_queue_max_size"`
	FreeListMaxSize  int `yaml:"free_list_max_size"`
	FrameSizeHint    int `yaml:"frame_size_hint"`
}

// TLSConfig selects the secure-session backend and its material.
type TLSConfig struct {
	// Backend is "tls" (default) or "noise".
	Backend string `yaml:"backend"`
	// CAFile / CertFile / KeyFile / CRLFile name PEM files.
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CRLFile  string `yaml:"crl_file"`
	// MinVersion is "", "1.2", or "1.3".
	MinVersion string `yaml:"min_version"`
	// RemoteHost, when set, requires the peer identity to match it.
	RemoteHost string `yaml:"remote_host"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML config bytes.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Remote.Host == "" {
		return fmt.Errorf("config: remote.host is required")
	}
	if c.Remote.Port == "" {
		return fmt.Errorf("config: remote.port is required")
	}
	switch c.TLS.Backend {
	case "", "tls", "noise":
	default:
		return fmt.Errorf("config: unknown tls.backend %q", c.TLS.Backend)
	}
	switch c.TLS.MinVersion {
	case "", "1.2", "1.3":
	default:
		return fmt.Errorf("config: unknown tls.min_version %q", c.TLS.MinVersion)
	}
	if c.Transport.SendQueueMaxSize < 0 || c.Transport.FreeListMaxSize < 0 || c.Transport.FrameSizeHint < 0 {
		return fmt.Errorf("config: transport sizes must not be negative")
	}
	return nil
}

// ClientConfig builds the transport factory described by the document.
func (c *Config) ClientConfig() *transport.ClientConfig {
	cc := transport.NewClientConfig(c.Remote.Host, c.Remote.Port)
	if c.Transport.SendQueueMaxSize > 0 {
		cc.SendQueueMaxSize = c.Transport.SendQueueMaxSize
	}
	if c.Transport.FreeListMaxSize > 0 {
		cc.FreeListMaxSize = c.Transport.FreeListMaxSize
	}
	if c.Transport.FrameSizeHint > 0 {
		cc.FrameSizeHint = c.Transport.FrameSizeHint
	}
	return cc
}

// MinVersion maps the document's min_version string onto the tlsx knob.
func (c *Config) MinVersion() tlsx.Version {
	switch c.TLS.MinVersion {
	case "1.2":
		return tlsx.VersionTLS12
	case "1.3":
		return tlsx.VersionTLS13
	default:
		return tlsx.VersionDefault
	}
}
