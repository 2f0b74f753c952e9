package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestAllowFixedWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()

	start := time.Now()
	rl.now = func() time.Time { return start }

	for i := 0; i < 2; i++ {
		if ok, _ := rl.allow("1.2.3.4"); !ok {
			t.Fatalf("Expected request %d to be allowed", i+1)
		}
	}
	ok, retry := rl.allow("1.2.3.4")
	if ok {
		t.Fatal("Expected third request to be rejected")
	}
	if retry != time.Minute {
		t.Errorf("Expected retry after 1m, got %v", retry)
	}

	if ok, _ := rl.allow("5.6.7.8"); !ok {
		t.Error("Expected another client to have its own budget")
	}

	rl.now = func() time.Time { return start.Add(time.Minute) }
	if ok, _ := rl.allow("1.2.3.4"); !ok {
		t.Error("Expected a new window to reset the budget")
	}
}

func TestSweepDropsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()

	start := time.Now()
	rl.now = func() time.Time { return start }
	rl.allow("1.2.3.4")

	rl.now = func() time.Time { return start.Add(3 * time.Minute) }
	rl.sweep()

	rl.mu.Lock()
	n := len(rl.visitors)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("Expected idle visitor to be dropped, got %d", n)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(1, time.Hour)
	defer rl.Close()

	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
}

func TestUnlimited(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	defer rl.Close()

	for i := 0; i < 100; i++ {
		if ok, _ := rl.allow("1.2.3.4"); !ok {
			t.Fatal("Expected no limit")
		}
	}
}
