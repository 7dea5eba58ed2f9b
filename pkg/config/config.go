package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DeploymentMode selects how public URLs are derived
type DeploymentMode string

const (
	ModeLocal  DeploymentMode = "local"
	ModeRemote DeploymentMode = "remote"
)

// Config is the complete gpubox configuration.
// It is built once at startup and injected into constructors.
type Config struct {
	APIAddr  string `yaml:"api_addr"`
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	Ports      PortRange  `yaml:"ports"`
	Docker     Docker     `yaml:"docker"`
	Timeouts   Timeouts   `yaml:"timeouts"`
	Deployment Deployment `yaml:"deployment"`
	Auth       Auth       `yaml:"auth"`

	// StatusFanout bounds concurrent per-container status queries
	StatusFanout int `yaml:"status_fanout"`

	PasswordMinLength int           `yaml:"password_min_length"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
}

// PortRange is the inclusive host port range shared by SSH and Jupyter bindings
type PortRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Size returns the number of ports in the range
func (p PortRange) Size() int {
	return p.Max - p.Min + 1
}

// Docker configures the container engine boundary
type Docker struct {
	Binary     string `yaml:"binary"`
	DNSServers string `yaml:"dns_servers"` // comma separated
}

// DNSList splits the configured DNS servers into individual resolvers
func (d Docker) DNSList() []string {
	var out []string
	for _, s := range strings.Split(d.DNSServers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Timeouts bounds every engine invocation
type Timeouts struct {
	// Run covers container creation, which installs packages over the network
	Run     time.Duration `yaml:"run"`
	Default time.Duration `yaml:"default"`
	Stats   time.Duration `yaml:"stats"`
}

// Deployment configures externally visible URLs
type Deployment struct {
	Mode    DeploymentMode `yaml:"mode"`
	APIHost string         `yaml:"api_host"`
}

// Auth configures bearer-token verification
type Auth struct {
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// Default returns a Config with the platform defaults
func Default() *Config {
	return &Config{
		APIAddr:  "0.0.0.0:8080",
		DataDir:  "./gpubox-data",
		LogLevel: "info",
		Ports:    PortRange{Min: 20000, Max: 21000},
		Docker: Docker{
			Binary:     "docker",
			DNSServers: "8.8.8.8,1.1.1.1",
		},
		Timeouts: Timeouts{
			Run:     10 * time.Minute,
			Default: 60 * time.Second,
			Stats:   30 * time.Second,
		},
		Deployment:        Deployment{Mode: ModeLocal},
		Auth:              Auth{Issuer: "gpubox", TokenTTL: 24 * time.Hour},
		StatusFanout:      8,
		PasswordMinLength: 8,
		SweepInterval:     5 * time.Minute,
	}
}

// Load reads the YAML file at path (if non-empty) over the defaults and then
// applies GPUBOX_* environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}

	str("GPUBOX_API_ADDR", &c.APIAddr)
	str("GPUBOX_DATA_DIR", &c.DataDir)
	str("GPUBOX_LOG_LEVEL", &c.LogLevel)
	str("GPUBOX_DOCKER_BINARY", &c.Docker.Binary)
	str("GPUBOX_DNS_SERVERS", &c.Docker.DNSServers)
	str("GPUBOX_API_HOST", &c.Deployment.APIHost)
	str("GPUBOX_AUTH_SECRET", &c.Auth.Secret)
	if v, ok := lookup("GPUBOX_DEPLOYMENT_MODE"); ok {
		c.Deployment.Mode = DeploymentMode(v)
	}
	if err := num("GPUBOX_PORT_MIN", &c.Ports.Min); err != nil {
		return err
	}
	if err := num("GPUBOX_PORT_MAX", &c.Ports.Max); err != nil {
		return err
	}
	return num("GPUBOX_STATUS_FANOUT", &c.StatusFanout)
}

// Validate checks the configuration for values the platform cannot run with
func (c *Config) Validate() error {
	if c.Ports.Min < 1024 || c.Ports.Max > 65535 || c.Ports.Min > c.Ports.Max {
		return fmt.Errorf("invalid port range [%d,%d]", c.Ports.Min, c.Ports.Max)
	}
	if c.Ports.Size() < 2 {
		return fmt.Errorf("port range [%d,%d] cannot hold one container", c.Ports.Min, c.Ports.Max)
	}
	for _, s := range c.Docker.DNSList() {
		if net.ParseIP(s) == nil {
			return fmt.Errorf("invalid DNS server %q", s)
		}
	}
	if c.Docker.Binary == "" {
		return fmt.Errorf("docker binary must be set")
	}
	if c.Timeouts.Run <= 0 || c.Timeouts.Default <= 0 || c.Timeouts.Stats <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	switch c.Deployment.Mode {
	case ModeLocal:
	case ModeRemote:
		if c.Deployment.APIHost == "" {
			return fmt.Errorf("deployment.api_host is required in remote mode")
		}
	default:
		return fmt.Errorf("unknown deployment mode %q", c.Deployment.Mode)
	}
	if c.StatusFanout < 1 {
		return fmt.Errorf("status_fanout must be at least 1")
	}
	if c.PasswordMinLength < 1 {
		return fmt.Errorf("password_min_length must be at least 1")
	}
	return nil
}

// ValidateServe adds the checks needed to expose the API
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Auth.Secret) < 16 {
		return fmt.Errorf("auth.secret must be at least 16 characters")
	}
	return nil
}

// PublicHost returns the host used in externally visible container URLs
func (c *Config) PublicHost() string {
	if c.Deployment.Mode == ModeRemote {
		return c.Deployment.APIHost
	}
	return "localhost"
}
