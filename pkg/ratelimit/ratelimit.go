package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/turbocompute/backend/pkg/utils"
	"golang.org/x/time/rate"
)

const staleAfter = 3 * time.Minute

// Limiter keeps a token bucket per client address. It is an owned, injectable
// component: construct it once in app wiring and attach Middleware to routes.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	rate    rate.Limit
	burst   int
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func New(r rate.Limit, burst int) *Limiter {
	return &Limiter{
		clients: make(map[string]*client),
		rate:    r,
		burst:   burst,
	}
}

func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = time.Now()

	l.evictStale()
	return c.limiter.Allow()
}

// evictStale runs under l.mu.
func (l *Limiter) evictStale() {
	for key, c := range l.clients {
		if time.Since(c.lastSeen) > staleAfter {
			delete(l.clients, key)
		}
	}
}

func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r.RemoteAddr) {
			utils.RespondWithError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
