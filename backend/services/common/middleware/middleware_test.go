package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type recordedMetric struct {
	name string
	dims map[string]string
}

type fakeRecorder struct {
	mu      sync.Mutex
	metrics []recordedMetric
	done    chan struct{}
}

func (f *fakeRecorder) RecordCount(_ context.Context, name string, dims map[string]string) error {
	f.mu.Lock()
	f.metrics = append(f.metrics, recordedMetric{name, dims})
	f.mu.Unlock()
	return nil
}

func (f *fakeRecorder) RecordLatency(_ context.Context, name string, _ time.Duration, dims map[string]string) error {
	f.mu.Lock()
	f.metrics = append(f.metrics, recordedMetric{name, dims})
	n := len(f.metrics)
	f.mu.Unlock()
	if n >= 2 && f.done != nil {
		close(f.done)
	}
	return nil
}

func TestRateLimit_RejectsOverBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(rate.Every(time.Hour), 2, time.Minute)
	defer rl.Stop()

	r := gin.New()
	r.Use(RateLimit(rl, nil))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Hour), 1, time.Minute)
	defer rl.Stop()

	assert.True(t, rl.Allow("student-1"))
	assert.False(t, rl.Allow("student-1"))
	assert.True(t, rl.Allow("student-2"))
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("ALLOWED_ORIGINS", "https://app.openframe.test")

	r := gin.New()
	r.Use(CORSMiddleware())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.openframe.test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.openframe.test", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("Origin", "https://evil.test")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &fakeRecorder{done: make(chan struct{})}

	r := gin.New()
	r.Use(MetricsMiddleware(rec, "payment-service"))
	r.GET("/payments/:payment_id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/payments/42", nil))

	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("metrics were not recorded")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "/payments/:payment_id", rec.metrics[0].dims["Path"])
	assert.Equal(t, "2xx", rec.metrics[0].dims["Status"])
}

func TestTimeout_SetsDeadline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()), Timeout(time.Second))

	var hasDeadline bool
	r.GET("/x", func(c *gin.Context) {
		_, hasDeadline = c.Request.Context().Deadline()
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.True(t, hasDeadline)
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
