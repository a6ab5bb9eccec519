package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config aggregates settings for the proxy server and the chat client.
type Config struct {
	Server ServerConfig
	API    APIConfig
	Proxy  ProxyConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	api, err := loadAPIConfig()
	if err != nil {
		return nil, err
	}

	proxy := loadProxyConfig()

	return &Config{Server: server, API: api, Proxy: proxy}, nil
}

// ServerConfig describes the proxy HTTP server.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" verbatim.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// APIConfig describes the upstream recommendation API.
type APIConfig struct {
	BaseURL        string
	APIKey         string
	ExternalUserID string
	TimeoutSec     int
}

// Enabled reports whether the required credentials are present.
func (c APIConfig) Enabled() bool {
	return c.BaseURL != "" && c.APIKey != ""
}

func loadAPIConfig() (APIConfig, error) {
	timeoutSec := 0
	if override, err := parseOptionalIntEnv("CURIO_REQUEST_TIMEOUT"); err != nil {
		return APIConfig{}, err
	} else if override != nil {
		if *override < 0 {
			return APIConfig{}, fmt.Errorf("CURIO_REQUEST_TIMEOUT must not be negative, got %d", *override)
		}
		timeoutSec = *override
	}

	return APIConfig{
		BaseURL:        getEnvOrDefault("CURIO_API_BASE_URL", "https://api.curio.example.com"),
		APIKey:         strings.TrimSpace(os.Getenv("CURIO_API_KEY")),
		ExternalUserID: strings.TrimSpace(os.Getenv("CURIO_EXTERNAL_USER_ID")),
		TimeoutSec:     timeoutSec,
	}, nil
}

// ProxyConfig describes the credential proxy's local state.
type ProxyConfig struct {
	TokenDBPath string
	AdminKey    string
}

func loadProxyConfig() ProxyConfig {
	return ProxyConfig{
		TokenDBPath: getEnvOrDefault("CURIO_TOKEN_DB", "curio-tokens.db"),
		AdminKey:    strings.TrimSpace(os.Getenv("CURIO_ADMIN_KEY")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
