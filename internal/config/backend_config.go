package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	apperrors "github.com/Rajat-Ahuja1997/last-time/internal/errors"
)

type Backend struct {
	BaseURL         string        `env:"BACKEND_BASE_URL"`
	ExchangeTimeout time.Duration `env:"EXCHANGE_TIMEOUT" envDefault:"30s"`
}

var _ BackendConfig = Backend{}

func (b Backend) GetBackendBaseURL() string {
	return b.BaseURL
}

func (b Backend) GetExchangeTimeout() time.Duration {
	return b.ExchangeTimeout
}

func (b Backend) validate() error {
	var errs []error
	if b.BaseURL == "" {
		errs = append(errs, apperrors.Wrapf(apperrors.ErrMissingConfig, "BACKEND_BASE_URL"))
	} else if u, err := url.Parse(b.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("%w: BACKEND_BASE_URL %q is not an absolute URL", apperrors.ErrInvalidConfig, b.BaseURL))
	}
	if b.ExchangeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: EXCHANGE_TIMEOUT must be positive", apperrors.ErrInvalidConfig))
	}
	return errors.Join(errs...)
}
