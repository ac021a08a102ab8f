package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// Config is the service configuration.
type Config struct {
	OpenStack  OpenStackConfig  `yaml:"openstack"`
	Server     ServerConfig     `yaml:"server"`
	Operations OperationsConfig `yaml:"operations"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// OpenStackConfig holds Keystone credentials and endpoint selection.
type OpenStackConfig struct {
	AuthURL     string `yaml:"auth_url"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	ProjectName string `yaml:"project_name"`
	DomainName  string `yaml:"domain_name"`
	Region      string `yaml:"region"`
	// Timeout is the number of seconds to wait for the compute API to come
	// up. Zero disables the check.
	Timeout int `yaml:"timeout"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	BindAddr string `yaml:"bind_addr"`
	BindPort string `yaml:"bind_port"`
	// PublicURL is the base of every self-link, e.g.
	// "http://gce.example.com:8787/compute/v1/".
	PublicURL string `yaml:"public_url"`
}

// OperationsConfig configures the operation store.
type OperationsConfig struct {
	DBPath string `yaml:"db_path"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		OpenStack: OpenStackConfig{
			AuthURL:    "http://localhost:5000/v3",
			DomainName: "default",
		},
		Server: ServerConfig{
			BindAddr: "0.0.0.0",
			BindPort: "8787",
		},
		Operations: OperationsConfig{
			DBPath: "gceapi.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "gceapi",
		},
	}
}

// Load reads the YAML file at path, if any, on top of the defaults and then
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.OpenStack.AuthURL = getEnvOrDefault("OS_AUTH_URL", c.OpenStack.AuthURL)
	c.OpenStack.Username = getEnvOrDefault("OS_USERNAME", c.OpenStack.Username)
	c.OpenStack.Password = getEnvOrDefault("OS_PASSWORD", c.OpenStack.Password)
	c.OpenStack.ProjectName = getEnvOrDefault("OS_PROJECT_NAME", c.OpenStack.ProjectName)
	c.OpenStack.DomainName = getEnvOrDefault("OS_USER_DOMAIN_NAME", c.OpenStack.DomainName)
	c.OpenStack.Region = getEnvOrDefault("OS_REGION_NAME", c.OpenStack.Region)
	if timeout, err := strconv.Atoi(os.Getenv("OS_API_TIMEOUT")); err == nil {
		c.OpenStack.Timeout = timeout
	}

	c.Server.BindAddr = getEnvOrDefault("BIND_ADDR", c.Server.BindAddr)
	c.Server.BindPort = getEnvOrDefault("BIND_PORT", c.Server.BindPort)
	c.Server.PublicURL = getEnvOrDefault("GCEAPI_PUBLIC_URL", c.Server.PublicURL)

	c.Operations.DBPath = getEnvOrDefault("GCEAPI_DB_PATH", c.Operations.DBPath)

	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("LOG_FORMAT", c.Log.Format)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
