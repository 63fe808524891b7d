package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterTTL = 5 * time.Minute

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// BidRateLimiter is a token bucket per authenticated user
type BidRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
}

func NewBidRateLimiter(perSecond float64, burst int) *BidRateLimiter {
	return &BidRateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

// Allow consumes one token for key
func (l *BidRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now

	// opportunistic cleanup keeps the map bounded without a janitor goroutine
	if len(l.buckets) > 1024 {
		for k, other := range l.buckets {
			if now.Sub(other.seen) > limiterTTL {
				delete(l.buckets, k)
			}
		}
	}
	return b.lim.Allow()
}

// Middleware rejects bids over the per-user rate with 429
func (l *BidRateLimiter) Middleware(c *gin.Context) {
	userID, _ := helpers.UserID(c)
	if userID == "" {
		userID = c.ClientIP()
	}
	if !l.Allow(userID) {
		utils.JSONError(c, http.StatusTooManyRequests, errors.New("rate limit exceeded"), "too many bids")
		c.Abort()
		return
	}
	c.Next()
}
