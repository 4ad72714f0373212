package providerfakes

import (
	"context"
	"sync"

	"github.com/Rajat-Ahuja1997/last-time/providers"
	"github.com/Rajat-Ahuja1997/last-time/sessions"
)

var _ providers.Adapter = (*FakeAdapter)(nil)

// FakeAdapter returns a canned credential or error. In blocking mode it waits
// for Release (or ctx, unless IgnoreContext is set) before answering.
type FakeAdapter struct {
	provider sessions.Provider

	lock          sync.Mutex
	credential    sessions.Credential
	err           error
	block         bool
	ignoreContext bool
	release       chan struct{}
	calls         int

	// Started receives once per call, after the call is counted.
	Started chan struct{}
}

func NewFakeAdapter(provider sessions.Provider) *FakeAdapter {
	return &FakeAdapter{
		provider: provider,
		credential: sessions.Credential{
			Provider: provider,
			Token:    "fake-" + provider.String() + "-id-token",
		},
		release: make(chan struct{}),
		Started: make(chan struct{}, 16),
	}
}

func (a *FakeAdapter) Provider() sessions.Provider {
	return a.provider
}

func (a *FakeAdapter) SetCredential(c sessions.Credential) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.credential = c
}

func (a *FakeAdapter) SetErr(err error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.err = err
}

// Block makes subsequent calls wait. With ignoreContext the call never
// observes cancellation, like a provider SDK that never calls back.
func (a *FakeAdapter) Block(ignoreContext bool) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.block = true
	a.ignoreContext = ignoreContext
	a.release = make(chan struct{})
}

// Release unblocks every waiting call and turns blocking off.
func (a *FakeAdapter) Release() {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.block {
		a.block = false
		close(a.release)
	}
}

func (a *FakeAdapter) Calls() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.calls
}

func (a *FakeAdapter) RequestCredential(ctx context.Context) (sessions.Credential, error) {
	a.lock.Lock()
	a.calls++
	block, ignoreContext, release := a.block, a.ignoreContext, a.release
	a.lock.Unlock()

	select {
	case a.Started <- struct{}{}:
	default:
	}

	if block {
		if ignoreContext {
			<-release
		} else {
			select {
			case <-release:
			case <-ctx.Done():
				return sessions.Credential{}, ctx.Err()
			}
		}
	}

	a.lock.Lock()
	defer a.lock.Unlock()
	if a.err != nil {
		return sessions.Credential{}, a.err
	}
	return a.credential, nil
}
