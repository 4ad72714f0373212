// Package loopback receives OAuth redirects on a short-lived local HTTP server.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const (
	DefaultAddr = "127.0.0.1:0"
	DefaultPath = "/callback"

	maxFormBytes = 64 << 10
)

var ErrStateMismatch = errors.New("callback state does not match")

// Config describes where the redirect lands.
type Config struct {
	Addr      string // Address to bind; port 0 picks a free port
	Path      string // Callback route
	PublicURL string // Redirect URL registered with the provider, when it differs from the bound address
}

// Listener accepts exactly one callback carrying the expected state, whether
// it arrives as a query (GET) or as a form post (POST).
type Listener struct {
	cfg       Config
	state     string
	ln        net.Listener
	srv       *http.Server
	result    chan url.Values
	delivered atomic.Bool
	once      sync.Once
	logger    zerolog.Logger
}

// Listen binds the callback server and starts serving. The caller must Close it.
func Listen(cfg Config, state string, logger zerolog.Logger) (*Listener, error) {
	if state == "" {
		return nil, errors.New("[loopback.Listen] state is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		cfg.Path = "/" + cfg.Path
	}

	l := &Listener{
		cfg:    cfg,
		state:  state,
		result: make(chan url.Values, 1),
		logger: logger,
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("[loopback.Listen] listen on %s: %w", cfg.Addr, err)
	}
	l.ln = ln

	r := chi.NewRouter()
	r.Use(middleware.Recoverer, securityHeaders, l.logRequests)
	r.Get(cfg.Path, l.handleCallback)
	r.Post(cfg.Path, l.handleCallback)
	l.srv = &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Err(err).Msg("loopback callback server stopped")
		}
	}()
	return l, nil
}

// RedirectURL is the URL the provider should redirect to.
func (l *Listener) RedirectURL() string {
	if l.cfg.PublicURL != "" {
		return l.cfg.PublicURL
	}
	return "http://" + l.ln.Addr().String() + l.cfg.Path
}

// Wait blocks until the callback arrives or ctx is done.
func (l *Listener) Wait(ctx context.Context) (url.Values, error) {
	select {
	case values := <-l.result:
		return values, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the server. It is safe to call more than once.
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err = l.srv.Shutdown(ctx)
	})
	return err
}

func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid callback", http.StatusBadRequest)
		return
	}

	if r.Form.Get("state") != l.state {
		l.logger.Warn().Str("method", r.Method).Msg("loopback callback with unexpected state")
		http.Error(w, ErrStateMismatch.Error(), http.StatusBadRequest)
		return
	}

	if !l.delivered.CompareAndSwap(false, true) {
		http.Error(w, "Sign-in already completed", http.StatusConflict)
		return
	}
	l.result <- r.Form

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.Form.Get("error") != "" {
		fmt.Fprint(w, "<html><body>Sign-in was not completed. You can close this window.</body></html>")
		return
	}
	fmt.Fprint(w, "<html><body>Signed in. You can close this window and return to the app.</body></html>")
}
