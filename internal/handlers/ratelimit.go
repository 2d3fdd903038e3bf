package handlers

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// clientLimiters hands out one token bucket per client address. Buckets that
// have refilled completely are dropped, since a fresh one behaves the same.
type clientLimiters struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clients   map[string]*rate.Limiter
	lastPrune time.Time
	every     time.Duration
}

func newClientLimiters(limit rate.Limit, burst int) *clientLimiters {
	return &clientLimiters{
		limit:   limit,
		burst:   burst,
		clients: map[string]*rate.Limiter{},
		every:   time.Minute,
	}
}

func (l *clientLimiters) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) >= l.every {
		l.prune(now)
	}
	lim, ok := l.clients[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.clients[key] = lim
	}
	return lim
}

func (l *clientLimiters) prune(now time.Time) {
	for k, lim := range l.clients {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.clients, k)
		}
	}
	l.lastPrune = now
}

func (l *clientLimiters) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// RateLimit caps requests per client IP. A limit of rate.Inf or a burst
// below one disables it.
func RateLimit(limit rate.Limit, burst int, log *logrus.Entry) gin.HandlerFunc {
	return rateLimit(newClientLimiters(limit, burst), time.Now, log)
}

func rateLimit(l *clientLimiters, nowFunc func() time.Time, log *logrus.Entry) gin.HandlerFunc {
	if l.limit == rate.Inf || l.burst < 1 {
		log.Warn("rate limit not configured, requests are not throttled")
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		now := nowFunc()
		ip := c.ClientIP()
		res := l.get(ip, now).ReserveN(now, 1)
		delay := res.DelayFrom(now)
		if delay == 0 {
			c.Next()
			return
		}
		res.CancelAt(now)

		log.WithFields(logrus.Fields{"client_ip": ip, "path": c.Request.URL.Path}).Warn("rate limit exceeded")
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{
			Error:   "rate_limited",
			Message: "too many requests, slow down",
		})
	}
}
