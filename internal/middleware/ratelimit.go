package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const idleBucketTTL = 5 * time.Minute

// RateLimiter throttles per client IP ahead of authentication and, once a
// bearer token has been validated, per API token as well.
type RateLimiter struct {
	perSecond rate.Limit
	burst     int
	now       func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	tokens *rate.Limiter
	seen   time.Time
}

// NewRateLimiter creates a limiter for the requests-per-minute budget. A
// non-positive budget disables throttling.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		perSecond: rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:     max(requestsPerMinute/10, 1),
		now:       time.Now,
		buckets:   make(map[string]*bucket),
	}
}

// Handler throttles by client IP. Request headers never select the bucket,
// so unvalidated credentials cannot buy a fresh budget.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	return r.HandlerBy(func(c *gin.Context) string { return "ip:" + c.ClientIP() })
}

// HandlerBy throttles on key(c). An empty key passes the request through.
// A nil limiter passes everything.
func (r *RateLimiter) HandlerBy(key func(*gin.Context) string) gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		k := key(c)
		if k == "" {
			c.Next()
			return
		}
		if wait, ok := r.allow(k); !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

// allow spends one token from key's bucket. When the bucket is empty it
// reports how long until the next token without consuming anything.
func (r *RateLimiter) allow(key string) (time.Duration, bool) {
	now := r.now()
	limiter := r.bucketFor(key, now)
	res := limiter.ReserveN(now, 1)
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return wait, false
	}
	return 0, true
}

func (r *RateLimiter) bucketFor(key string, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) > idleBucketTTL {
		for k, b := range r.buckets {
			if now.Sub(b.seen) > idleBucketTTL {
				delete(r.buckets, k)
			}
		}
		r.lastSweep = now
	}

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(r.perSecond, r.burst)}
		r.buckets[key] = b
	}
	b.seen = now
	return b.tokens
}
