// Package auth owns the client's authentication state machine. A Coordinator
// is built once at startup with its provider adapters, exchange client and
// session repo, and is the only writer of the stored session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Rajat-Ahuja1997/last-time/providers"
	"github.com/Rajat-Ahuja1997/last-time/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultSignInTimeout bounds the Loading state. Provider flows can leave the
// app for minutes while the user is in the browser.
const DefaultSignInTimeout = 5 * time.Minute

// Exchanger trades provider credentials for sessions with the backend.
type Exchanger interface {
	Exchange(ctx context.Context, provider sessions.Provider, cred sessions.Credential) (sessions.Session, error)
	Revoke(ctx context.Context, s sessions.Session) error
}

// Observer receives every published state, in transition order. Observers
// run on the publishing goroutine and should return quickly.
type Observer func(AuthState)

// Coordinator serializes sign-in attempts and publishes the current AuthState.
type Coordinator struct {
	adapters      map[sessions.Provider]providers.Adapter
	exchanger     Exchanger
	repo          sessions.Repo
	signInTimeout time.Duration
	nowTime       func() time.Time
	logger        zerolog.Logger

	lock          sync.Mutex // Guards every field below
	state         AuthState
	started       bool
	seeded        chan struct{} // Closed once Start has published the seeded state
	generation    uint64        // Bumped by every SignIn and SignOut; stale attempts never publish
	cancelAttempt context.CancelFunc
	observers     map[uint64]Observer
	nextObserver  uint64
	pending       []AuthState
	delivering    bool

	// writeLock serializes every repo access so a load never overlaps a write.
	writeLock sync.Mutex
}

// Option defines a function type to modify the Coordinator instance.
type Option func(*Coordinator)

// WithSignInTimeout bounds how long a sign-in attempt may stay Loading.
func WithSignInTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.signInTimeout = d
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Coordinator) {
		c.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// New creates a Coordinator in the Idle state. Call Start to seed it from the repo.
func New(adapters []providers.Adapter, exchanger Exchanger, repo sessions.Repo, options ...Option) (*Coordinator, error) {
	if len(adapters) == 0 {
		return nil, errors.New("[auth.New] at least one provider adapter is required")
	}
	if exchanger == nil {
		return nil, errors.New("[auth.New] exchange client is required")
	}
	if repo == nil {
		return nil, errors.New("[auth.New] session repo is required")
	}

	c := &Coordinator{
		adapters:      make(map[sessions.Provider]providers.Adapter, len(adapters)),
		exchanger:     exchanger,
		repo:          repo,
		signInTimeout: DefaultSignInTimeout,
		nowTime:       time.Now,
		logger:        log.Logger,
		observers:     make(map[uint64]Observer),
		seeded:        make(chan struct{}),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.signInTimeout <= 0 {
		return nil, fmt.Errorf("[auth.New] sign-in timeout must be positive, got %s", c.signInTimeout)
	}

	for _, a := range adapters {
		if a == nil {
			return nil, errors.New("[auth.New] nil provider adapter")
		}
		p := a.Provider()
		if !p.Valid() {
			return nil, fmt.Errorf("[auth.New] adapter for unsupported provider %q", p)
		}
		if _, dup := c.adapters[p]; dup {
			return nil, fmt.Errorf("[auth.New] duplicate adapter for provider %q", p)
		}
		c.adapters[p] = a
	}
	c.state = Idle().withTime(c.nowTime())
	return c, nil
}

// Start seeds the state from the repo: Authenticated when a session is stored,
// Unauthenticated otherwise. Only the first call loads; later calls wait until
// the seeded state is published or ctx is done.
func (c *Coordinator) Start(ctx context.Context) error {
	c.lock.Lock()
	if c.started {
		c.lock.Unlock()
		select {
		case <-c.seeded:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.started = true
	c.lock.Unlock()

	c.writeLock.Lock()
	stored, err := c.repo.Load(ctx)
	c.writeLock.Unlock()

	c.lock.Lock()
	var authErr *Error
	switch {
	case err != nil:
		authErr = persistenceError("load session", err)
		c.logger.Err(err).Msg("Failed to load stored session")
		c.transitionLocked(Failed(authErr))
	case stored == nil:
		c.transitionLocked(Unauthenticated())
	default:
		c.logger.Info().Str("provider", stored.Provider.String()).Msg("Restored stored session")
		c.transitionLocked(Authenticated(*stored))
	}
	c.lock.Unlock()
	close(c.seeded)
	c.flush()

	if authErr != nil {
		return authErr
	}
	return nil
}

// SignIn runs provider's flow, exchanges the credential and stores the
// resulting session. Only one attempt may be in flight; a second call while
// Loading fails with KindConcurrentSignInRejected and changes nothing.
func (c *Coordinator) SignIn(ctx context.Context, provider sessions.Provider) (sessions.Session, error) {
	adapter, supported := c.adapters[provider]

	c.lock.Lock()
	switch c.state.Status {
	case StatusIdle:
		c.lock.Unlock()
		return sessions.Session{}, ErrNotStarted
	case StatusLoading:
		inFlight := c.state.Provider
		c.lock.Unlock()
		c.logger.Warn().Str("provider", provider.String()).Str("in_flight", inFlight.String()).Msg("Sign-in rejected, another attempt is in flight")
		return sessions.Session{}, newError(KindConcurrentSignInRejected, provider,
			fmt.Errorf("sign-in with %s already in progress", inFlight))
	}
	if !supported {
		c.lock.Unlock()
		return sessions.Session{}, newError(KindInvalidCredential, provider,
			fmt.Errorf("%w: %q", sessions.ErrUnknownProvider, provider))
	}

	c.generation++
	gen := c.generation
	attemptCtx, cancel := context.WithTimeout(ctx, c.signInTimeout)
	defer cancel()
	c.cancelAttempt = cancel
	c.transitionLocked(Loading(provider))
	c.lock.Unlock()
	c.flush()

	c.logger.Debug().Str("provider", provider.String()).Dur("timeout", c.signInTimeout).Msg("Sign-in started")

	session, st, err := c.await(attemptCtx, adapter, provider)
	if err == nil {
		session, st, err = c.persist(attemptCtx, gen, session)
	}
	if err != nil {
		return sessions.Session{}, c.fail(gen, provider, st, err)
	}
	return session, nil
}

type attemptResult struct {
	session sessions.Session
	stage   stage
	err     error
}

// await runs the provider flow and the exchange on their own goroutine so
// that an adapter that never returns cannot hold the Loading state past ctx.
func (c *Coordinator) await(ctx context.Context, adapter providers.Adapter, provider sessions.Provider) (sessions.Session, stage, error) {
	done := make(chan attemptResult, 1)
	go func() {
		cred, err := adapter.RequestCredential(ctx)
		if err != nil {
			done <- attemptResult{stage: stageProvider, err: err}
			return
		}
		s, err := c.exchanger.Exchange(ctx, provider, cred)
		if err != nil {
			done <- attemptResult{stage: stageExchange, err: err}
			return
		}
		done <- attemptResult{session: s}
	}()

	select {
	case r := <-done:
		return r.session, r.stage, r.err
	case <-ctx.Done():
		return sessions.Session{}, stageProvider, ctx.Err()
	}
}

// persist stores s and publishes Authenticated, unless a SignOut has
// superseded the attempt in the meantime.
func (c *Coordinator) persist(ctx context.Context, gen uint64, s sessions.Session) (sessions.Session, stage, error) {
	c.writeLock.Lock()
	if !c.isCurrent(gen) {
		c.writeLock.Unlock()
		return sessions.Session{}, stagePersist, ErrAttemptSuperseded
	}
	if err := c.repo.Save(ctx, s); err != nil {
		c.writeLock.Unlock()
		return sessions.Session{}, stagePersist, err
	}

	c.lock.Lock()
	if c.generation != gen {
		// SignOut is waiting on writeLock and will clear what was just saved
		c.lock.Unlock()
		c.writeLock.Unlock()
		return sessions.Session{}, stagePersist, ErrAttemptSuperseded
	}
	c.cancelAttempt = nil
	c.transitionLocked(Authenticated(s))
	c.lock.Unlock()
	c.writeLock.Unlock()
	c.flush()

	c.logger.Info().Str("provider", s.Provider.String()).Msg("Signed in")
	return s, stagePersist, nil
}

// fail publishes Error for a current attempt. A superseded attempt only
// reports the failure to its caller.
func (c *Coordinator) fail(gen uint64, provider sessions.Provider, st stage, err error) error {
	kind := classify(st, err)
	authErr := newError(kind, provider, err)

	c.lock.Lock()
	if c.generation != gen {
		c.lock.Unlock()
		if !errors.Is(err, ErrAttemptSuperseded) {
			authErr.Err = fmt.Errorf("%w: %w", ErrAttemptSuperseded, err)
		}
		authErr.Kind = KindUserCancelled
		return authErr
	}
	c.cancelAttempt = nil
	c.transitionLocked(Failed(authErr))
	c.lock.Unlock()
	c.flush()

	c.logger.Err(err).Str("provider", provider.String()).Str("kind", string(kind)).Msg("Sign-in failed")
	return authErr
}

// SignOut cancels any in-flight attempt, revokes the backend session, clears
// the stored session and publishes Unauthenticated. It is idempotent.
func (c *Coordinator) SignOut(ctx context.Context) error {
	c.lock.Lock()
	if c.state.Status == StatusIdle {
		c.lock.Unlock()
		return ErrNotStarted
	}
	prev := c.state
	c.generation++
	gen := c.generation
	if c.cancelAttempt != nil {
		c.cancelAttempt()
		c.cancelAttempt = nil
	}
	c.lock.Unlock()

	c.writeLock.Lock()
	if current, ok := prev.CurrentSession(); ok {
		if err := c.exchanger.Revoke(ctx, current); err != nil {
			c.logger.Warn().Err(err).Str("provider", current.Provider.String()).Msg("Backend sign-out failed, clearing local session anyway")
		}
	}
	clearErr := c.repo.Clear(ctx)

	c.lock.Lock()
	var authErr *Error
	if clearErr != nil {
		authErr = persistenceError("clear session", clearErr)
	}
	// A SignIn that started after this SignOut owns the state now
	if c.generation == gen {
		if authErr != nil {
			c.transitionLocked(Failed(authErr))
		} else {
			c.transitionLocked(Unauthenticated())
		}
	}
	c.lock.Unlock()
	c.writeLock.Unlock()
	c.flush()

	if authErr != nil {
		c.logger.Err(clearErr).Msg("Failed to clear stored session")
		return authErr
	}
	c.logger.Debug().Msg("Signed out")
	return nil
}

// CurrentState returns the published state.
func (c *Coordinator) CurrentState() AuthState {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// IsLoading reports whether the state is not yet seeded or a sign-in is in flight.
func (c *Coordinator) IsLoading() bool {
	s := c.CurrentState().Status
	return s == StatusIdle || s == StatusLoading
}

// Subscribe registers obs for every later transition. The returned function
// removes it and may be called more than once.
func (c *Coordinator) Subscribe(obs Observer) (unsubscribe func()) {
	if obs == nil {
		return func() {}
	}
	c.lock.Lock()
	id := c.nextObserver
	c.nextObserver++
	c.observers[id] = obs
	c.lock.Unlock()

	return func() {
		c.lock.Lock()
		delete(c.observers, id)
		c.lock.Unlock()
	}
}

func (c *Coordinator) isCurrent(gen uint64) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.generation == gen
}

// transitionLocked sets the state and queues it for delivery. c.lock must be held.
func (c *Coordinator) transitionLocked(s AuthState) {
	s = s.withTime(c.nowTime())
	c.logger.Debug().Str("from", c.state.String()).Str("to", s.String()).Msg("Auth state changed")
	c.state = s
	c.pending = append(c.pending, s)
}

// flush delivers queued states in order. Whichever goroutine finds the queue
// idle drains it, so an observer that triggers a new transition has it
// delivered after the current one instead of deadlocking. A panicking observer
// releases the queue; states still pending go out with the next flush.
func (c *Coordinator) flush() {
	c.lock.Lock()
	if c.delivering {
		c.lock.Unlock()
		return
	}
	c.delivering = true
	drained := false
	defer func() {
		if !drained {
			c.lock.Lock()
			c.delivering = false
			c.lock.Unlock()
		}
	}()

	for len(c.pending) > 0 {
		s := c.pending[0]
		c.pending = c.pending[1:]
		observers := make([]Observer, 0, len(c.observers))
		for _, obs := range c.observers {
			observers = append(observers, obs)
		}
		c.lock.Unlock()

		for _, obs := range observers {
			obs(s)
		}

		c.lock.Lock()
	}
	c.pending = nil
	c.delivering = false
	drained = true
	c.lock.Unlock()
}
