package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newClockedLimiter(rps float64, burst int, now *time.Time) *RateLimiter {
	rl := NewRateLimiter(rps, burst)
	rl.now = func() time.Time { return *now }
	return rl
}

func TestRateLimiter(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("allows a burst then blocks", func(t *testing.T) {
		now := start
		limiter := newClockedLimiter(1, 3, &now)

		for i := 0; i < 3; i++ {
			assert.True(t, limiter.Allow("client1"), "request %d should be allowed", i+1)
		}
		assert.False(t, limiter.Allow("client1"))
		assert.Equal(t, 1, limiter.RetryAfter("client1"))
	})

	t.Run("separate limits per client", func(t *testing.T) {
		now := start
		limiter := newClockedLimiter(1, 2, &now)

		assert.True(t, limiter.Allow("clientA"))
		assert.True(t, limiter.Allow("clientA"))
		assert.False(t, limiter.Allow("clientA"))

		assert.True(t, limiter.Allow("clientB"))
	})

	t.Run("refills over time", func(t *testing.T) {
		now := start
		limiter := newClockedLimiter(2, 1, &now)

		assert.True(t, limiter.Allow("client3"))
		assert.False(t, limiter.Allow("client3"))

		now = now.Add(500 * time.Millisecond)
		assert.True(t, limiter.Allow("client3"))
	})

	t.Run("cleanup drops idle clients", func(t *testing.T) {
		now := start
		limiter := newClockedLimiter(1, 1, &now)
		limiter.Allow("idle")

		now = now.Add(5 * time.Minute)
		limiter.Allow("busy")
		now = now.Add(6 * time.Minute)

		assert.Equal(t, 1, limiter.Cleanup())
		_, ok := limiter.clients["busy"]
		assert.True(t, ok)
	})

	t.Run("concurrent access is safe", func(t *testing.T) {
		limiter := NewRateLimiter(1, 100)
		var wg sync.WaitGroup
		allowed := make(chan bool, 200)
		for i := 0; i < 200; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				allowed <- limiter.Allow("shared")
			}()
		}
		wg.Wait()
		close(allowed)

		count := 0
		for ok := range allowed {
			if ok {
				count++
			}
		}
		assert.GreaterOrEqual(t, count, 100)
		assert.LessOrEqual(t, count, 101)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RateLimit(NewRateLimiter(0.001, 2)))
	router.GET("/offers", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/offers", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "0.001", w.Header().Get("X-RateLimit-Limit"))
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/offers", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_RATE_LIMITED")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
