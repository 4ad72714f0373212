package config

import (
	"encoding/base64"
	"fmt"

	apperrors "github.com/Rajat-Ahuja1997/last-time/internal/errors"
)

// StoreKind selects the session repo implementation.
type StoreKind string

const (
	StoreFile   StoreKind = "file"
	StoreSQLite StoreKind = "sqlite"
)

const encryptionKeySize = 32

type Store struct {
	Kind          StoreKind `env:"SESSION_STORE" envDefault:"file"`
	Path          string    `env:"SESSION_PATH" envDefault:"./data/session.json"`
	EncryptionKey string    `env:"SESSION_ENCRYPTION_KEY"` // Base64, optional; file store only
}

var _ StoreConfig = Store{}

func (s Store) GetSessionStore() StoreKind {
	return s.Kind
}

func (s Store) GetSessionPath() string {
	return s.Path
}

// GetSessionEncryptionKey decodes the key. A nil key means the file is stored unsealed.
func (s Store) GetSessionEncryptionKey() ([]byte, error) {
	if s.EncryptionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(s.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: SESSION_ENCRYPTION_KEY is not base64: %v", apperrors.ErrInvalidConfig, err)
	}
	if len(key) != encryptionKeySize {
		return nil, fmt.Errorf("%w: SESSION_ENCRYPTION_KEY must decode to %d bytes, got %d", apperrors.ErrInvalidConfig, encryptionKeySize, len(key))
	}
	return key, nil
}

func (s Store) validate() error {
	switch s.Kind {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("%w: SESSION_STORE must be %q or %q, got %q", apperrors.ErrInvalidConfig, StoreFile, StoreSQLite, s.Kind)
	}
	if s.Path == "" {
		return apperrors.Wrapf(apperrors.ErrMissingConfig, "SESSION_PATH")
	}
	_, err := s.GetSessionEncryptionKey()
	return err
}
