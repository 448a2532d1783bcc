package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	SecurityConfig
	StoreConfig
	ProviderConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetAuthPath() string
	GetReadTimeout() time.Duration
	GetWriteTimeout() time.Duration
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Token
	Security
	Store
	Providers
}

// New loads the configuration from the process environment.
func New() (Config, error) {
	c := &mainConfig{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}

// NewWithEnvironment loads the configuration from the given key/value pairs
// instead of the process environment.
func NewWithEnvironment(environment map[string]string) (Config, error) {
	c := &mainConfig{}
	if err := env.ParseWithOptions(c, env.Options{Environment: environment}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}
