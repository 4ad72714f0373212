package sessions

import "context"

// CurrentSessionKey is the fixed key the current session is stored under.
const CurrentSessionKey = "current_session"

// Repo durably stores the last known session across process restarts.
// A write in flight completes before the next read or write begins, so Load
// never observes a partially written Session.
type Repo interface {
	// Save replaces the stored session
	Save(ctx context.Context, session Session) error

	// Load returns the stored session, or nil when none is stored
	Load(ctx context.Context) (*Session, error)

	// Clear removes the stored session; clearing an empty store is not an error
	Clear(ctx context.Context) error
}
