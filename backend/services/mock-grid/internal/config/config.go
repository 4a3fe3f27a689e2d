package config

import (
	"fmt"
	"strings"

	libconfig "greenlane/backend/libs/config"
)

const defaultHTTPPort = "8081"

// Config defines mock grid configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"MOCK_GRID_HTTP_PORT"`
	} `yaml:"http"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = defaultHTTPPort

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = defaultHTTPPort
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
