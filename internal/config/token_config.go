package config

import "time"

type TokenConfig interface {
	GetSigningAlgorithm() string
	GetJWTSecret() string
	GetPrivateKeyFile() string
	GetTokenTTL() time.Duration
	GetRefreshInterval() time.Duration
}

type Token struct {
	Algorithm       string        `env:"JWT_ALG" envDefault:"HS256"`
	Secret          string        `env:"JWT_SECRET"`
	PrivateKeyFile  string        `env:"JWT_PRIVATE_KEY_FILE"`
	TTL             time.Duration `env:"JWT_TTL" envDefault:"168h"`
	RefreshInterval time.Duration `env:"JWT_REFRESH_INTERVAL" envDefault:"1h"`
}

var _ TokenConfig = Token{}

func (t Token) GetSigningAlgorithm() string {
	return t.Algorithm
}

func (t Token) GetJWTSecret() string {
	return t.Secret
}

func (t Token) GetPrivateKeyFile() string {
	return t.PrivateKeyFile
}

func (t Token) GetTokenTTL() time.Duration {
	if t.TTL <= 0 {
		return 7 * 24 * time.Hour // 7 days
	}
	return t.TTL
}

// GetRefreshInterval is how long after issue a client should come back for a
// fresh token. Never longer than the token TTL.
func (t Token) GetRefreshInterval() time.Duration {
	if t.RefreshInterval <= 0 || t.RefreshInterval > t.GetTokenTTL() {
		return t.GetTokenTTL()
	}
	return t.RefreshInterval
}
