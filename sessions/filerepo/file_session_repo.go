// Package filerepo stores the current session as a single JSON document on disk.
package filerepo

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/Rajat-Ahuja1997/last-time/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/chacha20poly1305"
)

var _ sessions.Repo = (*FileSessionRepo)(nil)

// ErrInvalidKey is returned when the encryption key is not 32 bytes long.
var ErrInvalidKey = errors.New("encryption key must be 32 bytes")

// document is the on-disk envelope. Key names the fixed record so the file
// format can hold other entries later.
type document struct {
	Key     string          `json:"key"`
	Session sessions.Record `json:"session"`
}

// FileSessionRepo writes the session to a temp file and renames it over the
// target, so a reader sees either the old or the new document.
type FileSessionRepo struct {
	path   string
	aead   cipher.AEAD
	logger zerolog.Logger
	lock   sync.RWMutex
}

// Option configures a FileSessionRepo.
type Option func(*FileSessionRepo) error

// WithEncryptionKey seals the document with XChaCha20-Poly1305.
func WithEncryptionKey(key []byte) Option {
	return func(r *FileSessionRepo) error {
		if len(key) != chacha20poly1305.KeySize {
			return ErrInvalidKey
		}
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return fmt.Errorf("chacha20poly1305.NewX: %w", err)
		}
		r.aead = aead
		return nil
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *FileSessionRepo) error {
		r.logger = logger
		return nil
	}
}

// New creates a repo backed by the file at path. The parent directory is
// created if needed.
func New(path string, options ...Option) (*FileSessionRepo, error) {
	if path == "" {
		return nil, errors.New("[filerepo.New] path is required")
	}
	r := &FileSessionRepo{
		path:   path,
		logger: log.Logger,
	}
	for _, opt := range options {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("[filerepo.New] %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("[filerepo.New] create data folder: %w", err)
	}
	return r, nil
}

func (r *FileSessionRepo) Save(ctx context.Context, s sessions.Session) error {
	if err := ctx.Err(); err != nil {
		return persistenceErr("save", err)
	}
	if err := s.Validate(); err != nil {
		return persistenceErr("save", err)
	}

	data, err := json.Marshal(document{Key: sessions.CurrentSessionKey, Session: s.ToRecord()})
	if err != nil {
		return persistenceErr("save", err)
	}
	if data, err = r.seal(data); err != nil {
		return persistenceErr("save", err)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if err := r.writeAtomic(data); err != nil {
		return persistenceErr("save", err)
	}
	r.logger.Debug().Str("path", r.path).Msg("session saved")
	return nil
}

func (r *FileSessionRepo) Load(ctx context.Context) (*sessions.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistenceErr("load", err)
	}

	r.lock.RLock()
	data, err := os.ReadFile(r.path)
	r.lock.RUnlock()

	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceErr("load", err)
	}
	if data, err = r.open(data); err != nil {
		return nil, persistenceErr("load", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, persistenceErr("load", err)
	}
	if doc.Key != sessions.CurrentSessionKey {
		return nil, persistenceErr("load", fmt.Errorf("unexpected record key %q", doc.Key))
	}
	s, err := doc.Session.Session()
	if err != nil {
		return nil, persistenceErr("load", err)
	}
	return &s, nil
}

func (r *FileSessionRepo) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return persistenceErr("clear", err)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return persistenceErr("clear", err)
	}
	r.logger.Debug().Str("path", r.path).Msg("session cleared")
	return nil
}

func (r *FileSessionRepo) writeAtomic(data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(r.path), "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), r.path)
}

// seal prefixes the ciphertext with its random nonce.
func (r *FileSessionRepo) seal(plaintext []byte) ([]byte, error) {
	if r.aead == nil {
		return plaintext, nil
	}
	nonce := make([]byte, r.aead.NonceSize(), r.aead.NonceSize()+len(plaintext)+r.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("rand.Read: %w", err)
	}
	return r.aead.Seal(nonce, nonce, plaintext, []byte(sessions.CurrentSessionKey)), nil
}

func (r *FileSessionRepo) open(data []byte) ([]byte, error) {
	if r.aead == nil {
		return data, nil
	}
	if len(data) < r.aead.NonceSize() {
		return nil, errors.New("sealed session is truncated")
	}
	nonce, ciphertext := data[:r.aead.NonceSize()], data[r.aead.NonceSize():]
	plaintext, err := r.aead.Open(nil, nonce, ciphertext, []byte(sessions.CurrentSessionKey))
	if err != nil {
		return nil, fmt.Errorf("open sealed session: %w", err)
	}
	return plaintext, nil
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%w: filerepo %s: %w", sessions.ErrPersistence, op, err)
}
