// Package http exposes the messaging and bot action APIs over HTTP.
package http

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/messenger/internal/config"
	"github.com/nextlevelbuilder/messenger/internal/store"
)

// actorHandlerFunc is an http.HandlerFunc that receives the authenticated
// acting provider.
type actorHandlerFunc func(w http.ResponseWriter, r *http.Request, actor store.Provider)

// Guard authenticates requests and applies the per-provider rate limit.
type Guard struct {
	token   string
	limiter *limiterPool
}

// NewGuard creates a Guard from the gateway token and rate limit.
func NewGuard(cfg *config.Config) *Guard {
	g := &Guard{token: cfg.Gateway.Token}
	if cfg.Gateway.RateLimitRPM > 0 {
		g.limiter = newLimiterPool(cfg.Gateway.RateLimitRPM)
	}
	return g
}

func (g *Guard) auth(next actorHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.token != "" {
			if subtle.ConstantTimeCompare([]byte(extractBearerToken(r)), []byte(g.token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}
		actor, err := store.ParseProvider(r.Header.Get("X-Provider"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "X-Provider header required (alias:id)"})
			return
		}
		if actor.IsBot() {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "bots cannot act over HTTP"})
			return
		}
		if g.limiter != nil && !g.limiter.Allow(actor.Key()) {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next(w, r, actor)
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// clientIP returns the request's remote address without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
