package loopback

import (
	"net/http"
)

// securityHeaders keeps the callback page out of frames, caches and referrers;
// its URL carries the authorization code.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// logRequests records the method and path only; the query holds secrets.
func (l *Listener) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("loopback request")
		next.ServeHTTP(w, r)
	})
}
