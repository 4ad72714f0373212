package fakesessionrepo

import (
	"context"
	"fmt"
	"sync"

	"github.com/Rajat-Ahuja1997/last-time/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo keeps the current session in memory. Failures can be injected
// per operation to exercise error paths.
type FakeSessionRepo struct {
	current *sessions.Session
	lock    sync.RWMutex

	SaveErr  error
	LoadErr  error
	ClearErr error

	// LoadGate, when set, makes Load wait until it is closed.
	LoadGate chan struct{}

	saves  int
	loads  int
	clears int
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{}
}

// NewFakeSessionRepoWith starts with s already stored.
func NewFakeSessionRepoWith(s sessions.Session) *FakeSessionRepo {
	return &FakeSessionRepo{current: &s}
}

func (sr *FakeSessionRepo) Save(_ context.Context, s sessions.Session) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	sr.saves++
	if sr.SaveErr != nil {
		return fmt.Errorf("%w: %w", sessions.ErrPersistence, sr.SaveErr)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %w", sessions.ErrPersistence, err)
	}
	sr.current = &s
	return nil
}

func (sr *FakeSessionRepo) Load(_ context.Context) (*sessions.Session, error) {
	if sr.LoadGate != nil {
		<-sr.LoadGate
	}

	sr.lock.Lock()
	defer sr.lock.Unlock()

	sr.loads++
	if sr.LoadErr != nil {
		return nil, fmt.Errorf("%w: %w", sessions.ErrPersistence, sr.LoadErr)
	}
	if sr.current == nil {
		return nil, nil
	}
	s := *sr.current
	return &s, nil
}

func (sr *FakeSessionRepo) Clear(_ context.Context) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	sr.clears++
	if sr.ClearErr != nil {
		return fmt.Errorf("%w: %w", sessions.ErrPersistence, sr.ClearErr)
	}
	sr.current = nil
	return nil
}

// SetSaveErr changes the injected Save failure under the repo lock.
func (sr *FakeSessionRepo) SetSaveErr(err error) {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	sr.SaveErr = err
}

// Calls returns how many times each operation ran.
func (sr *FakeSessionRepo) Calls() (saves, loads, clears int) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	return sr.saves, sr.loads, sr.clears
}
