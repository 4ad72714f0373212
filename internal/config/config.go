package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	ProviderConfig
	BackendConfig
	StoreConfig
	Validate() error
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type ProviderConfig interface {
	GetGoogleClientID() string
	GetGoogleClientSecret() string
	GetAppleBundleID() string
	GetAppleRedirectURL() string
	GetCallbackAddr() string
	GetSignInTimeout() time.Duration
}

type BackendConfig interface {
	GetBackendBaseURL() string
	GetExchangeTimeout() time.Duration
}

type StoreConfig interface {
	GetSessionStore() StoreKind
	GetSessionPath() string
	GetSessionEncryptionKey() ([]byte, error)
}

type mainConfig struct {
	EnvVars
	Providers
	Backend
	Store
}

// New reads the configuration from the process environment.
func New() (Config, error) {
	var c mainConfig
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config.New] parse env: %w", err)
	}
	return c, nil
}

// NewFromMap reads the configuration from vars instead of the environment.
func NewFromMap(vars map[string]string) (Config, error) {
	var c mainConfig
	if err := env.ParseWithOptions(&c, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("[config.NewFromMap] parse env: %w", err)
	}
	return c, nil
}

// Validate reports every missing or malformed option at once.
func (c mainConfig) Validate() error {
	return errors.Join(
		c.Providers.validate(),
		c.Backend.validate(),
		c.Store.validate(),
	)
}
