package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(max int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLimiter(RateLimitConfig{Max: max, Window: window})
	l.now = clock.now
	return l, clock
}

func request(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPut, "/api/cart/c1/coupon", nil)
	req.RemoteAddr = remote
	return req
}

func TestLimiter_UnderLimit(t *testing.T) {
	l, _ := newTestLimiter(5, time.Minute)
	handler := l.Middleware()(okHandler())

	for i := range 5 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, request("192.168.1.1:12345"))

		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestLimiter_OverLimit(t *testing.T) {
	l, _ := newTestLimiter(2, time.Minute)
	handler := l.Middleware()(okHandler())

	for range 2 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, request("10.0.0.1:9999"))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, request("10.0.0.1:9999"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var code int
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) == "code" {
			v, err := d.Int()
			code = v
			return err
		}
		return d.Skip()
	}))
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	handler := l.Middleware()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, request("10.0.0.1:1"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, request("10.0.0.2:1"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLimiter_WindowSlides(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)

	_, _, ok := l.Allow("k")
	require.True(t, ok)
	_, _, ok = l.Allow("k")
	require.True(t, ok)
	_, _, ok = l.Allow("k")
	require.False(t, ok)

	// Half into the next window the previous one still weighs 50%.
	clock.t = clock.t.Add(90 * time.Second)
	remaining, _, ok := l.Allow("k")
	require.True(t, ok)
	assert.Equal(t, 0, remaining)
	_, _, ok = l.Allow("k")
	assert.False(t, ok)

	// Two windows later the history is gone.
	clock.t = clock.t.Add(2 * time.Minute)
	remaining, _, ok = l.Allow("k")
	require.True(t, ok)
	assert.Equal(t, 1, remaining)
}

func TestLimiter_Sweep(t *testing.T) {
	l, clock := newTestLimiter(1, time.Minute)
	l.Allow("a")

	clock.t = clock.t.Add(3 * time.Minute)
	l.Sweep()

	assert.Empty(t, l.keys)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{name: "forwarded chain", header: map[string]string{"X-Forwarded-For": "1.1.1.1, 2.2.2.2"}, remote: "3.3.3.3:1", want: "1.1.1.1"},
		{name: "real ip", header: map[string]string{"X-Real-IP": "4.4.4.4"}, remote: "3.3.3.3:1", want: "4.4.4.4"},
		{name: "remote addr", remote: "3.3.3.3:1", want: "3.3.3.3"},
		{name: "remote without port", remote: "3.3.3.3", want: "3.3.3.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request(tt.remote)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
