package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"chowfast/internal/service/session"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const sessionHeader = "X-Session-Token"

type ctxKey string

const sessionCtxKey ctxKey = "session"

func sessionMiddleware(sessions SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(sessionHeader))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("missing "+sessionHeader+" header", ""))
			return
		}
		sess, err := sessions.Lookup(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, session.ErrInvalidToken) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("invalid or expired session", ""))
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody("failed to resolve session", ""))
			return
		}
		ctx := context.WithValue(c.Request.Context(), sessionCtxKey, sess)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) *session.Session {
	sess, _ := c.Request.Context().Value(sessionCtxKey).(*session.Session)
	return sess
}

// lookupLimiter keeps one token bucket per client IP.
type lookupLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*limiterEntry
	now     func() time.Time
	lastGC  time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterIdle = 10 * time.Minute

func newLookupLimiter(perSecond float64, now func() time.Time) *lookupLimiter {
	burst := int(perSecond * 2)
	if burst < 1 {
		burst = 1
	}
	return &lookupLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: map[string]*limiterEntry{},
		now:     now,
		lastGC:  now(),
	}
}

func (l *lookupLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastGC) > limiterIdle {
		for k, e := range l.clients {
			if now.Sub(e.lastSeen) > limiterIdle {
				delete(l.clients, k)
			}
		}
		l.lastGC = now
	}

	e, ok := l.clients[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (l *lookupLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody("too many order lookups, slow down", ""))
			return
		}
		c.Next()
	}
}
