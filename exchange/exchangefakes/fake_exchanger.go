package exchangefakes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Rajat-Ahuja1997/last-time/exchange"
	"github.com/Rajat-Ahuja1997/last-time/internal/utils"
	"github.com/Rajat-Ahuja1997/last-time/sessions"
)

// FakeExchanger answers exchanges from a canned response instead of a backend.
type FakeExchanger struct {
	lock sync.Mutex

	response  exchange.Response
	err       error
	revokeErr error
	now       time.Time

	exchanges []sessions.Credential
	revoked   []sessions.Session
}

// NewFakeExchanger returns u1 for every credential.
func NewFakeExchanger(now time.Time) *FakeExchanger {
	return &FakeExchanger{
		response: exchange.Response{UserID: utils.Ptr("u1"), Email: utils.Ptr("u1@x.com")},
		now:      now,
	}
}

// SetResponse changes the backend answer. A nil or empty UserID fails the
// exchange like a malformed backend response would.
func (f *FakeExchanger) SetResponse(r exchange.Response) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.response = r
}

func (f *FakeExchanger) SetErr(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.err = err
}

func (f *FakeExchanger) SetRevokeErr(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.revokeErr = err
}

func (f *FakeExchanger) Exchange(ctx context.Context, provider sessions.Provider, cred sessions.Credential) (sessions.Session, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.exchanges = append(f.exchanges, cred)
	if err := ctx.Err(); err != nil {
		return sessions.Session{}, err
	}
	if f.err != nil {
		return sessions.Session{}, f.err
	}
	if utils.Value(f.response.UserID) == "" {
		return sessions.Session{}, fmt.Errorf("%w: missing userId", exchange.ErrMalformedResponse)
	}

	s := sessions.Session{
		UserID:      utils.Value(f.response.UserID),
		Email:       utils.Value(f.response.Email),
		DisplayName: utils.Value(f.response.DisplayName),
		AvatarURL:   utils.Value(f.response.AvatarURL),
		Provider:    provider,
		IssuedAt:    sessions.NormalizeTime(f.now),
		AccessToken: utils.Value(f.response.AccessToken),
	}
	return s, nil
}

func (f *FakeExchanger) Revoke(_ context.Context, s sessions.Session) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.revoked = append(f.revoked, s)
	return f.revokeErr
}

// Exchanges returns every credential received so far.
func (f *FakeExchanger) Exchanges() []sessions.Credential {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]sessions.Credential(nil), f.exchanges...)
}

// Revoked returns every session passed to Revoke so far.
func (f *FakeExchanger) Revoked() []sessions.Session {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]sessions.Session(nil), f.revoked...)
}
