package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Request classes with separate budgets.
const (
	classRead  = "read"
	classWrite = "write"
)

// clientBuckets holds one client's read and write budgets.
type clientBuckets struct {
	read     *rate.Limiter
	write    *rate.Limiter
	lastSeen time.Time
}

// RateLimiter returns a Gin middleware that throttles each client IP. Reads
// get rps with burst; writes, which move funds or change configuration, get
// a quarter of both (at least 1). Idle clients are forgotten after ten
// minutes; the sweep stops when ctx is cancelled.
func RateLimiter(ctx context.Context, rps, burst int) gin.HandlerFunc {
	writeRPS, writeBurst := max(rps/4, 1), max(burst/4, 1)

	var mu sync.Mutex
	clients := make(map[string]*clientBuckets)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				for ip, b := range clients {
					if time.Since(b.lastSeen) > 10*time.Minute {
						delete(clients, ip)
					}
				}
				mu.Unlock()
			}
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		b, ok := clients[ip]
		if !ok {
			b = &clientBuckets{
				read:  rate.NewLimiter(rate.Limit(rps), burst),
				write: rate.NewLimiter(rate.Limit(writeRPS), writeBurst),
			}
			clients[ip] = b
		}
		b.lastSeen = time.Now()
		mu.Unlock()

		class, limiter := classRead, b.read
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			class, limiter = classWrite, b.write
		}

		if !limiter.Allow() {
			recordRateLimited(class)
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
				"code":  "RateLimited",
			})
			return
		}
		c.Next()
	}
}
