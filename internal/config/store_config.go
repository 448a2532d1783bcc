package config

import "time"

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type StoreConfig interface {
	GetStoreDriver() string
	GetSessionDriver() string
	GetSQLitePath() string
	GetRedisURL() string
	GetVerificationCodeTTL() time.Duration
}

type Store struct {
	Driver              string        `env:"STORE_DRIVER" envDefault:"memory"`
	SessionDriver       string        `env:"SESSION_DRIVER"`
	SQLitePath          string        `env:"SQLITE_PATH" envDefault:"./data/gateway.db"`
	RedisURL            string        `env:"REDIS_URL"`
	VerificationCodeTTL time.Duration `env:"VERIFICATION_CODE_TTL" envDefault:"5m"`
}

var _ StoreConfig = Store{}

func (s Store) GetStoreDriver() string {
	if s.Driver == "" {
		return DriverMemory
	}
	return s.Driver
}

// GetSessionDriver defaults to the tenant/user store driver.
func (s Store) GetSessionDriver() string {
	if s.SessionDriver == "" {
		return s.GetStoreDriver()
	}
	return s.SessionDriver
}

func (s Store) GetSQLitePath() string {
	return s.SQLitePath
}

func (s Store) GetRedisURL() string {
	return s.RedisURL
}

func (s Store) GetVerificationCodeTTL() time.Duration {
	return s.VerificationCodeTTL
}
