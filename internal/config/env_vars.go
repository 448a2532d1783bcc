package config

import (
	"fmt"
	"strings"
	"time"
)

type EnvVars struct {
	Port         string        `env:"PORT" envDefault:"8080"`
	AppName      string        `env:"APP_NAME" envDefault:"Session Gateway"`
	Environment  string        `env:"ENV" envDefault:"DEV"`
	AuthPath     string        `env:"AUTH_PATH" envDefault:"/jwt_auth"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port == "" {
		port = "8080"
	}
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Environment == "" {
		return "DEV"
	}
	return e.Environment
}

// GetAuthPath returns the path of the token endpoint. POST issues, GET
// refreshes and DELETE revokes.
func (e EnvVars) GetAuthPath() string {
	if e.AuthPath == "" {
		return "/jwt_auth"
	}
	if !strings.HasPrefix(e.AuthPath, "/") {
		return "/" + e.AuthPath
	}
	return e.AuthPath
}

func (e EnvVars) GetReadTimeout() time.Duration {
	return e.ReadTimeout
}

func (e EnvVars) GetWriteTimeout() time.Duration {
	return e.WriteTimeout
}
