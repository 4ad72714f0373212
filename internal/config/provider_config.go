package config

import (
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Rajat-Ahuja1997/last-time/internal/errors"
)

type Providers struct {
	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET"`
	AppleBundleID      string        `env:"APPLE_BUNDLE_ID"`
	AppleRedirectURL   string        `env:"APPLE_REDIRECT_URL"` // Apple only redirects to registered https URLs
	CallbackAddr       string        `env:"CALLBACK_ADDR" envDefault:"127.0.0.1:0"`
	SignInTimeout      time.Duration `env:"SIGN_IN_TIMEOUT" envDefault:"5m"`
}

var _ ProviderConfig = Providers{}

func (p Providers) GetGoogleClientID() string {
	return p.GoogleClientID
}

func (p Providers) GetGoogleClientSecret() string {
	return p.GoogleClientSecret
}

func (p Providers) GetAppleBundleID() string {
	return p.AppleBundleID
}

func (p Providers) GetAppleRedirectURL() string {
	return p.AppleRedirectURL
}

func (p Providers) GetCallbackAddr() string {
	return p.CallbackAddr
}

func (p Providers) GetSignInTimeout() time.Duration {
	return p.SignInTimeout
}

func (p Providers) validate() error {
	var errs []error
	if p.GoogleClientID == "" && p.AppleBundleID == "" {
		errs = append(errs, apperrors.Wrapf(apperrors.ErrMissingConfig, "GOOGLE_CLIENT_ID or APPLE_BUNDLE_ID"))
	}
	if p.SignInTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: SIGN_IN_TIMEOUT must be positive", apperrors.ErrInvalidConfig))
	}
	return errors.Join(errs...)
}
